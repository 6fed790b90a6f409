package handler // handler contains the HTTP handlers of the voting API

import (
	"context"  // context bounds readiness probes
	"net/http" // net/http provides status codes and response helpers
	"time"     // time sets probe timeouts

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health is a liveness endpoint used by load balancers and monitoring
// systems to verify that the process is serving requests.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Pinger is a dependency that can report whether it is reachable.
type Pinger func(ctx context.Context) error

// Ready returns a readiness endpoint that pings every named dependency and
// answers 503 listing the ones that failed.
func Ready(deps map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		failed := echo.Map{}
		for name, ping := range deps {
			if err := ping(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "failed": failed})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	}
}
