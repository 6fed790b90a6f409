package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/setlist-vote/internal/handler"
)

func TestRegister_Routes(t *testing.T) {
	e := echo.New()
	Register(e, Deps{
		Shows:     &handler.ShowHandler{},
		Votes:     &handler.VoteHandler{},
		Presence:  &handler.PresenceHandler{},
		Cron:      &handler.CronHandler{},
		JWTSecret: "k",
	})

	got := map[string]bool{}
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"GET /v1/shows/trending",
		"GET /v1/shows/:id",
		"POST /v1/shows/:id/views",
		"GET /v1/shows/:id/setlist",
		"POST /v1/shows/:id/setlist/songs",
		"POST /v1/shows/:id/votes",
		"GET /v1/shows/:id/votes/me",
		"GET /v1/shows/:id/presence",
		"POST /v1/shows/:id/presence",
		"DELETE /v1/shows/:id/presence",
		"GET /v1/shows/:id/live",
		"POST /internal/cron/trending",
		"POST /internal/cron/show-status",
	} {
		assert.True(t, got[want], "missing route %s", want)
	}
	assert.False(t, got["GET /readyz"], "readyz is only registered with a handler")
}

func TestRegister_ProtectedRoutesNeedAuth(t *testing.T) {
	e := echo.New()
	Register(e, Deps{
		Shows:     &handler.ShowHandler{},
		Votes:     &handler.VoteHandler{},
		Presence:  &handler.PresenceHandler{},
		Cron:      &handler.CronHandler{},
		JWTSecret: "k",
	})

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/v1/shows/1/votes"},
		{http.MethodGet, "/v1/shows/1/votes/me"},
		{http.MethodPost, "/v1/shows/1/setlist/songs"},
		{http.MethodPost, "/v1/shows/1/presence"},
		{http.MethodDelete, "/v1/shows/1/presence"},
		{http.MethodPost, "/internal/cron/trending"},
		{http.MethodPost, "/internal/cron/show-status"},
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}
