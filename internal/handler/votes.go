package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/setlist-vote/internal/middleware"
	"github.com/iliyamo/setlist-vote/internal/model"
	"github.com/iliyamo/setlist-vote/internal/service"
)

// Voter is the admission controller used by VoteHandler.
type Voter interface {
	CastVote(ctx context.Context, userID string, showID, setlistSongID uint64) (model.VoteResult, error)
	Status(ctx context.Context, userID string, showID uint64) (model.VoteStatus, error)
}

// VoteHandler serves vote casting and the caller's quota status.
type VoteHandler struct {
	Votes Voter
	Log   logrus.FieldLogger
}

type castVoteRequest struct {
	SetlistSongID uint64 `json:"setlist_song_id"`
}

// rejectStatus maps a rejection to its HTTP status.
func rejectStatus(r model.RejectReason) int {
	switch r {
	case model.RejectUnauthenticated:
		return http.StatusUnauthorized
	case model.RejectAlreadyVoted:
		return http.StatusConflict
	case model.RejectShowLimitReached, model.RejectDailyLimitReached:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

// CastVote records a vote for a setlist song of the show.  Accepted votes
// answer 201 with the new tally and remaining quota; rejections answer
// 401/409/429 with the reason and the quota that caused it.
func (h *VoteHandler) CastVote(c echo.Context) error {
	showID, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	var req castVoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.SetlistSongID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "setlist_song_id is required"})
	}

	res, err := h.Votes.CastVote(c.Request().Context(), middleware.UserID(c), showID, req.SetlistSongID)
	switch {
	case errors.Is(err, service.ErrSongNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "setlist song not found for show"})
	case errors.Is(err, service.ErrUnavailable):
		h.Log.WithError(err).WithField("show_id", showID).Warn("vote admission unavailable")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "vote temporarily unavailable", "retryable": true})
	case err != nil:
		h.Log.WithError(err).WithField("show_id", showID).Error("vote admission failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if !res.Accepted {
		return c.JSON(rejectStatus(res.Reason), res)
	}
	return c.JSON(http.StatusCreated, res)
}

// MyStatus returns the caller's quota usage for the show and the songs
// already voted for.
func (h *VoteHandler) MyStatus(c echo.Context) error {
	showID, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	st, err := h.Votes.Status(c.Request().Context(), middleware.UserID(c), showID)
	if errors.Is(err, service.ErrUnauthenticated) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "reason": model.RejectUnauthenticated})
	}
	if err != nil {
		h.Log.WithError(err).WithField("show_id", showID).Error("vote status failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, st)
}
