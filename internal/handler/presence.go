package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/setlist-vote/internal/middleware"
)

// PresenceTracker is the presence API used by PresenceHandler.
type PresenceTracker interface {
	Touch(ctx context.Context, showID uint64, userID string) error
	Leave(ctx context.Context, showID uint64, userID string) error
	Viewers(ctx context.Context, showID uint64) ([]string, error)
}

// LiveServer upgrades a request to a websocket subscribed to a show.
type LiveServer interface {
	Serve(w http.ResponseWriter, r *http.Request, showID uint64, userID string, heartbeatGap time.Duration, touch func(ctx context.Context) error) error
}

// PresenceHandler serves viewer presence over HTTP and the live websocket.
type PresenceHandler struct {
	Presence PresenceTracker
	Socket   LiveServer
	// HeartbeatGap throttles presence refreshes from one socket.
	HeartbeatGap time.Duration
	Log          logrus.FieldLogger
}

// Viewers lists the users currently watching the show.
func (h *PresenceHandler) Viewers(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	viewers, err := h.Presence.Viewers(c.Request().Context(), id)
	if err != nil {
		h.Log.WithError(err).Warn("presence viewers failed")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "presence unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": id, "count": len(viewers), "viewers": viewers})
}

// Heartbeat joins the caller to the show or refreshes their entry.
// Clients without websockets call it periodically.
func (h *PresenceHandler) Heartbeat(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	if err := h.Presence.Touch(c.Request().Context(), id, middleware.UserID(c)); err != nil {
		h.Log.WithError(err).Warn("presence touch failed")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "presence unavailable"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Leave removes the caller from the show's viewers.
func (h *PresenceHandler) Leave(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	if err := h.Presence.Leave(c.Request().Context(), id, middleware.UserID(c)); err != nil {
		h.Log.WithError(err).Warn("presence leave failed")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "presence unavailable"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Live upgrades to a websocket streaming the show's vote deltas and
// presence changes.  Authenticated sockets join presence and refresh it on
// every heartbeat; anonymous sockets only listen.
func (h *PresenceHandler) Live(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	userID := middleware.UserID(c)
	var touch func(ctx context.Context) error
	if userID != "" {
		touch = func(ctx context.Context) error { return h.Presence.Touch(ctx, id, userID) }
		if err := touch(c.Request().Context()); err != nil {
			h.Log.WithError(err).Warn("presence join failed")
		}
	}
	if err := h.Socket.Serve(c.Response(), c.Request(), id, userID, h.HeartbeatGap, touch); err != nil {
		h.Log.WithError(err).Debug("websocket upgrade failed")
	}
	return nil
}
