package middleware

// identity.go holds the context key the auth middlewares write and the
// accessor handlers use to read it.

import "github.com/labstack/echo/v4"

const userIDKey = "user_id"

// UserID returns the authenticated user's ID or "" for anonymous requests.
func UserID(c echo.Context) string {
	if s, ok := c.Get(userIDKey).(string); ok {
		return s
	}
	return ""
}

// rateSubject returns the identity used in rate limit keys.
func rateSubject(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
