// Package handler exposes the HTTP handlers of the setlist voting API.
// This file holds the public show endpoints: detail, view tracking, the
// trending listing and the setlist with its live tallies.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/setlist-vote/internal/middleware"
	"github.com/iliyamo/setlist-vote/internal/model"
	"github.com/iliyamo/setlist-vote/internal/repository"
)

// ShowStore is the show persistence used by ShowHandler.
type ShowStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Show, error)
	IncrementViewCount(ctx context.Context, id uint64) error
	ListTrending(ctx context.Context, q repository.TrendingQuery) ([]model.Show, int64, error)
}

// SetlistStore is the setlist persistence used by ShowHandler.
type SetlistStore interface {
	ListSongs(ctx context.Context, showID uint64) ([]model.SetlistSong, error)
	AddSong(ctx context.Context, showID, songID uint64, kind string) (*model.SetlistSong, error)
}

// ShowHandler serves the public show endpoints.
type ShowHandler struct {
	Shows    ShowStore
	Setlists SetlistStore
}

// GetShow returns one show.
func (h *ShowHandler) GetShow(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	show, err := h.Shows.GetByID(c.Request().Context(), id)
	if errors.Is(err, repository.ErrShowNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, show)
}

// RecordView counts one page view of the show.
func (h *ShowHandler) RecordView(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	err := h.Shows.IncrementViewCount(c.Request().Context(), id)
	if errors.Is(err, repository.ErrShowNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Trending lists upcoming shows by trending score.  Query parameters:
// title (substring filter), page, page_size (also accepted as limit).
func (h *ShowHandler) Trending(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	ps, _ := strconv.Atoi(c.QueryParam("page_size"))
	if ps < 1 {
		ps, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if ps < 1 {
		ps = 20
	}
	if ps > 100 {
		ps = 100
	}

	items, total, err := h.Shows.ListTrending(c.Request().Context(), repository.TrendingQuery{
		Title:    strings.TrimSpace(c.QueryParam("title")),
		Page:     page,
		PageSize: ps,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":      items,
		"total":     total,
		"page":      page,
		"page_size": ps,
	})
}

// GetSetlist returns the show's setlist songs ranked by vote count.
func (h *ShowHandler) GetSetlist(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	songs, err := h.Setlists.ListSongs(c.Request().Context(), id)
	if errors.Is(err, repository.ErrShowNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": id, "songs": songs})
}

type addSongRequest struct {
	SongID uint64 `json:"song_id"`
	Kind   string `json:"kind"`
}

// AddSong adds a catalog song to the show's setlist, creating the setlist
// on first use.  kind defaults to MAIN.
func (h *ShowHandler) AddSong(c echo.Context) error {
	if middleware.UserID(c) == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	var req addSongRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.SongID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "song_id is required"})
	}
	kind := strings.ToUpper(strings.TrimSpace(req.Kind))
	if kind == "" {
		kind = model.SetlistMain
	}
	if kind != model.SetlistMain && kind != model.SetlistEncore {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "kind must be MAIN or ENCORE"})
	}

	song, err := h.Setlists.AddSong(c.Request().Context(), id, req.SongID, kind)
	switch {
	case errors.Is(err, repository.ErrShowNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
	case errors.Is(err, repository.ErrSongNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "song not found"})
	case errors.Is(err, repository.ErrSongAlreadyListed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "song already on setlist"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, song)
}
