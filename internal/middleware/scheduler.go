package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/setlist-vote/internal/utils"
)

// RequireSchedulerSecret guards the internal cron endpoints.  The caller
// must send "Authorization: Bearer <secret>" where the secret matches the
// bcrypt hash configured in CRON_SECRET_HASH.  With no hash configured the
// endpoints are closed.
func RequireSchedulerSecret(hash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			secret := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if hash == "" || !strings.HasPrefix(auth, "Bearer ") || secret == "" || !utils.VerifySecret(hash, secret) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}
