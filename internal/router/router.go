package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/setlist-vote/internal/handler"    // handlers implementing each endpoint
	"github.com/iliyamo/setlist-vote/internal/middleware" // JWT, scheduler secret, cache and rate limit middleware
)

// Deps bundles the handlers and middleware the routes need.
type Deps struct {
	Shows     *handler.ShowHandler
	Votes     *handler.VoteHandler
	Presence  *handler.PresenceHandler
	Cron      *handler.CronHandler
	Ready     echo.HandlerFunc
	JWTSecret string
	CronHash  string
	// Cache wraps cacheable public reads; RateLimit wraps vote casting.
	// Either may be nil.
	Cache     echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
}

func optional(mw ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mw))
	for _, m := range mw {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Register wires every route of the service onto e.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d.Ready)
	RegisterShows(e, d)
	RegisterVotes(e, d)
	RegisterPresence(e, d)
	RegisterInternal(e, d)
}

// RegisterRoutes registers the probes.  /healthz is liveness; /readyz
// checks dependencies when a readiness handler is given.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
}

// RegisterShows registers the public show endpoints.  The trending list
// goes through the response cache; setlist tallies are read live.
func RegisterShows(e *echo.Echo, d Deps) {
	g := e.Group("/v1/shows")
	g.GET("/trending", d.Shows.Trending, optional(d.Cache)...)
	g.GET("/:id", d.Shows.GetShow, optional(d.Cache)...)
	g.POST("/:id/views", d.Shows.RecordView)
	g.GET("/:id/setlist", d.Shows.GetSetlist)
	g.POST("/:id/setlist/songs", d.Shows.AddSong, middleware.JWTAuth(d.JWTSecret))
}

// RegisterVotes registers vote casting and the caller's quota status.
// Authentication runs before the limiter so buckets are keyed by user.
func RegisterVotes(e *echo.Echo, d Deps) {
	g := e.Group("/v1/shows/:id/votes", middleware.JWTAuth(d.JWTSecret))
	g.POST("", d.Votes.CastVote, optional(d.RateLimit)...)
	g.GET("/me", d.Votes.MyStatus)
}

// RegisterPresence registers the presence endpoints and the live socket.
func RegisterPresence(e *echo.Echo, d Deps) {
	g := e.Group("/v1/shows/:id")
	g.GET("/presence", d.Presence.Viewers)
	g.POST("/presence", d.Presence.Heartbeat, middleware.JWTAuth(d.JWTSecret))
	g.DELETE("/presence", d.Presence.Leave, middleware.JWTAuth(d.JWTSecret))
	g.GET("/live", d.Presence.Live, middleware.OptionalJWT(d.JWTSecret))
}

// RegisterInternal registers the scheduler-triggered jobs.
func RegisterInternal(e *echo.Echo, d Deps) {
	g := e.Group("/internal/cron", middleware.RequireSchedulerSecret(d.CronHash))
	g.POST("/trending", d.Cron.RunTrending)
	g.POST("/show-status", d.Cron.AdvanceStatuses)
}
