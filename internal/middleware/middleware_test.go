package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/setlist-vote/internal/config"
	"github.com/iliyamo/setlist-vote/internal/utils"
)

const testSecret = "test-secret"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, sub, time.Minute)
	require.NoError(t, err)
	return tok.Token
}

func whoAmI(c echo.Context) error { return c.String(http.StatusOK, UserID(c)) }

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoAmI, JWTAuth(testSecret))

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "u-7"))
	rec = serve(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-7", rec.Body.String())

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/me?token="+token(t, "u-8"), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-8", rec.Body.String())
}

func TestJWTAuth_RejectsOversizedSubject(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoAmI, JWTAuth(testSecret))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, strings.Repeat("u", utils.MaxSubjectLen+1)))
	rec := serve(e, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
}

func TestOptionalJWT(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoAmI, OptionalJWT(testSecret))

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", rec.Body.String())

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/me?token="+token(t, "u-1"), nil))
	assert.Equal(t, "u-1", rec.Body.String())

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/me?token=bad", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSchedulerSecret(t *testing.T) {
	hash, err := utils.HashSecret("cron", bcrypt.MinCost)
	require.NoError(t, err)

	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	e.POST("/cron", ok, RequireSchedulerSecret(hash))
	e.POST("/closed", ok, RequireSchedulerSecret(""))

	for name, tc := range map[string]struct {
		path   string
		header string
		want   int
	}{
		"valid":        {"/cron", "Bearer cron", http.StatusNoContent},
		"wrong secret": {"/cron", "Bearer nope", http.StatusUnauthorized},
		"no header":    {"/cron", "", http.StatusUnauthorized},
		"no scheme":    {"/cron", "cron", http.StatusUnauthorized},
		"no hash":      {"/closed", "Bearer cron", http.StatusUnauthorized},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			assert.Equal(t, tc.want, serve(e, req).Code)
		})
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestTokenBucket(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "user_route",
		Prefix:         "rl:test",
	}
	e := echo.New()
	e.POST("/v", func(c echo.Context) error { return c.NoContent(http.StatusAccepted) },
		JWTAuth(testSecret), NewTokenBucket(cfg, rdb, quietLogger()))

	send := func(sub string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, sub))
		return serve(e, req)
	}

	assert.Equal(t, http.StatusAccepted, send("a").Code)
	rec := send("a")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = send("a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Buckets are per user.
	assert.Equal(t, http.StatusAccepted, send("b").Code)
}

func TestTokenBucket_FailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour}
	e := echo.New()
	e.POST("/v", func(c echo.Context) error { return c.NoContent(http.StatusAccepted) }, NewTokenBucket(cfg, rdb, quietLogger()))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusAccepted, serve(e, httptest.NewRequest(http.MethodPost, "/v", nil)).Code)
	}
}

func TestRedisCache(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled:     true,
		Methods:     map[string]bool{http.MethodGet: true},
		TTL:         time.Minute,
		KeyStrategy: "route_query",
		Prefix:      "cache:test",
	}
	calls := 0
	e := echo.New()
	e.GET("/shows", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	}, NewRedisCache(cfg, rdb, quietLogger()))

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/shows?limit=5", nil))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"calls":1}`, rec.Body.String())

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/shows?limit=5", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"calls":1}`, rec.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get(echo.HeaderContentType))

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/shows?limit=6", nil))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	req := httptest.NewRequest(http.MethodGet, "/shows?limit=5", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec = serve(e, req)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Equal(t, 3, calls)
}
