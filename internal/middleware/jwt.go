package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/setlist-vote/internal/utils"
)

// bearerToken returns the raw token from the Authorization header or, for
// websocket upgrades where browsers cannot set headers, the "token" query
// parameter.
func bearerToken(c echo.Context) string {
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return c.QueryParam("token")
}

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the token's subject in the context under "user_id".  Requests
// without a valid token are answered with 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "reason": "UNAUTHENTICATED"})
			}
			sub, err := utils.ParseSubject(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "reason": "UNAUTHENTICATED"})
			}
			c.Set(userIDKey, sub)
			return next(c)
		}
	}
}

// OptionalJWT behaves like JWTAuth when a token is present and lets
// anonymous requests through untouched.  A token that is present but
// invalid is still rejected so clients notice expired sessions.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return next(c)
			}
			sub, err := utils.ParseSubject(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "reason": "UNAUTHENTICATED"})
			}
			c.Set(userIDKey, sub)
			return next(c)
		}
	}
}
