package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authsvc "wattswap-backend/internal/application/auth"
	"wattswap-backend/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// whoami echoes the resolved identity uid, or "" when anonymous.
func whoami(c *fiber.Ctx) error {
	if id := CurrentIdentity(c); id != nil {
		return c.SendString(id.UID)
	}
	return c.SendString("")
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestIdentify_BearerTokenWinsOverSession(t *testing.T) {
	rdb := newRedis(t)
	verifier := authsvc.NewTokenVerifier("secret")
	tok, err := verifier.Issue(domain.Identity{UID: "token-user"}, time.Hour)
	require.NoError(t, err)

	sid := uuid.NewString()
	data, _ := json.Marshal(map[string]interface{}{"user": map[string]interface{}{"uid": "session-user"}})
	require.NoError(t, rdb.Set(context.Background(), SessionRedisPrefix+sid, data, time.Hour).Err())

	app := fiber.New()
	app.Use(Session(rdb), Identify(verifier))
	app.Get("/who", whoami)

	req := httptest.NewRequest("GET", "/who", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "s:" + sid})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "session-user", body(t, resp))

	req = httptest.NewRequest("GET", "/who", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "s:" + sid})
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "token-user", body(t, resp))

	// A bad token falls back to the session instead of rejecting.
	req = httptest.NewRequest("GET", "/who", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "s:" + sid})
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "session-user", body(t, resp))
}

func TestRequireAuth(t *testing.T) {
	app := fiber.New()
	app.Use(Identify(nil))
	app.Get("/private", RequireAuth(), whoami)

	resp, err := app.Test(httptest.NewRequest("GET", "/private", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestSession_SavesOnlyWhenDataSet(t *testing.T) {
	rdb := newRedis(t)
	app := fiber.New()
	app.Use(Session(rdb))
	app.Get("/anon", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/login", func(c *fiber.Ctx) error {
		RegenerateSessionID(c)
		SetSessionUser(c, SessionUser{UID: "u-1", Email: "u@example.com"})
		return c.SendStatus(fiber.StatusOK)
	})
	ctx := context.Background()

	_, err := app.Test(httptest.NewRequest("GET", "/anon", nil))
	require.NoError(t, err)
	keys, err := rdb.Keys(ctx, SessionRedisPrefix+"*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = app.Test(httptest.NewRequest("GET", "/login", nil))
	require.NoError(t, err)
	keys, err = rdb.Keys(ctx, SessionRedisPrefix+"*").Result()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	raw, err := rdb.Get(ctx, keys[0]).Result()
	require.NoError(t, err)
	assert.Contains(t, raw, `"uid":"u-1"`)
}

func TestCORS(t *testing.T) {
	app := fiber.New()
	app.Use(CORS(CORSConfig{AllowedSuffix: ".wattswap.app", DevPassword: "letmein"}))
	app.Get("/x", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	cases := []struct {
		name   string
		origin string
		dev    string
		method string
		want   int
	}{
		{"no origin", "", "", "GET", fiber.StatusOK},
		{"suffix", "https://app.wattswap.app", "", "GET", fiber.StatusOK},
		{"suffix preflight", "https://app.wattswap.app", "", "OPTIONS", fiber.StatusNoContent},
		{"localhost preflight", "http://localhost:3000", "", "OPTIONS", fiber.StatusNoContent},
		{"dev password", "https://elsewhere.test", "letmein", "GET", fiber.StatusOK},
		{"rejected", "https://evil.test", "", "GET", fiber.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/x", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if tc.dev != "" {
			req.Header.Set("dev-password", tc.dev)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tc.want, resp.StatusCode, tc.name)
		if tc.want != fiber.StatusForbidden && tc.origin != "" {
			assert.Equal(t, tc.origin, resp.Header.Get("Access-Control-Allow-Origin"), tc.name)
		}
	}
}

func TestTracing_ReusesValidInboundID(t *testing.T) {
	app := fiber.New()
	app.Use(Tracing())
	app.Get("/x", func(c *fiber.Ctx) error { return c.SendString(GetTraceID(c)) })

	inbound := uuid.NewString()
	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set(traceIDHeader, inbound)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, inbound, resp.Header.Get(traceIDHeader))

	req = httptest.NewRequest("GET", "/x", nil)
	req.Header.Set(traceIDHeader, "not-a-uuid")
	resp, err = app.Test(req)
	require.NoError(t, err)
	got := resp.Header.Get(traceIDHeader)
	assert.NotEqual(t, "not-a-uuid", got)
	_, err = uuid.Parse(got)
	assert.NoError(t, err)
}

func TestHealthMarkerAndErrorHandler_CountFailures(t *testing.T) {
	rdb := newRedis(t)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(rdb)})
	app.Use(HealthMarker(rdb), Tracing(), RouteLogger())
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })
	app.Get("/health/json", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for _, path := range []string{"/ok", "/boom", "/health/json"} {
		_, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
	}
	ctx := context.Background()
	total, err := rdb.Get(ctx, KeyReqTotal).Int()
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	failed, err := rdb.Get(ctx, KeyReqErrors).Int()
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	entries, err := rdb.LRange(ctx, KeyErrorLog, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], `"path":"/boom"`)
	assert.Contains(t, entries[0], `"statusCode":500`)
}
