package middleware_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EdgeWard/WardGate/pkg/admission"
	"github.com/EdgeWard/WardGate/pkg/common"
	"github.com/EdgeWard/WardGate/pkg/config"
	"github.com/EdgeWard/WardGate/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func newGuardedApp(t *testing.T, cfg config.GuardConfig) (*fiber.App, *admission.Pipeline) {
	t.Helper()
	pipeline, err := admission.Build(cfg, nil, nil, logrus.New())
	require.NoError(t, err)

	app := fiber.New()
	app.Use(middleware.NewAdmissionMiddleware(logrus.New(), pipeline).Middleware())
	app.All("/*", func(c *fiber.Ctx) error {
		return c.SendString("upstream ok")
	})
	return app, pipeline
}

func guardTestConfig() config.GuardConfig {
	return config.GuardConfig{
		Provider:     "memory",
		BanDuration:  30 * time.Minute,
		Burst:        config.WindowConfig{WindowMs: 1000, MaxEvents: 50},
		Fingerprint:  config.WindowConfig{WindowMs: 300000, MaxEvents: 100},
		Suspicion:    config.SuspicionConfig{Threshold: 3, EscalateMultiplier: 5},
		AttackMode:   config.AttackModeConfig{HighThreshold: 1000},
		StoreTimeout: time.Second,
	}
}

func cleanGet(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	return req
}

func TestAdmissionMiddleware_AdmitsCleanRequest(t *testing.T) {
	app, _ := newGuardedApp(t, guardTestConfig())

	resp, err := app.Test(cleanGet("/api/orders"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "upstream ok", string(body))
	assert.Empty(t, resp.Header.Get(common.AttackModeHeader))
}

func TestAdmissionMiddleware_DeniedClientGets403(t *testing.T) {
	app, pipeline := newGuardedApp(t, guardTestConfig())

	// The fiber test transport reports 0.0.0.0 as the peer address.
	_, err := pipeline.AccessList().Deny(context.Background(), "0.0.0.0", "manual block", time.Hour)
	require.NoError(t, err)

	resp, err := app.Test(cleanGet("/api/orders"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "blocked", payload["code"])
	assert.Equal(t, "access denied", payload["error"])
}

func TestAdmissionMiddleware_BurstRejectionCarriesRateHeaders(t *testing.T) {
	cfg := guardTestConfig()
	cfg.Burst.MaxEvents = 1

	app, _ := newGuardedApp(t, cfg)

	resp, err := app.Test(cleanGet("/api/orders"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(cleanGet("/api/orders"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get(common.RetryAfterHeader))
	assert.Equal(t, "1", resp.Header.Get(common.RateLimitLimitHeader))
	assert.Equal(t, "0", resp.Header.Get(common.RateLimitRemainingHeader))
	assert.NotEmpty(t, resp.Header.Get(common.RateLimitResetHeader))

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "burst", payload["code"])
}

func TestAdmissionMiddleware_SensitivePathRejected(t *testing.T) {
	app, _ := newGuardedApp(t, guardTestConfig())

	resp, err := app.Test(cleanGet("/.env"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "suspicious", payload["code"])
}

func TestAdmissionMiddleware_TrustsForwardingHeaders(t *testing.T) {
	app, pipeline := newGuardedApp(t, guardTestConfig())

	_, err := pipeline.AccessList().Deny(context.Background(), "203.0.113.99", "manual block", time.Hour)
	require.NoError(t, err)

	req := cleanGet("/api/orders")
	req.Header.Set(common.XRealIPHeader, "203.0.113.99")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	// First hop of a forwarded chain identifies the client.
	req = cleanGet("/api/orders")
	req.Header.Set(common.XForwardedForHeader, "203.0.113.99, 10.0.0.1")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = cleanGet("/api/orders")
	req.Header.Set(common.XForwardedForHeader, "198.51.100.7")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAdmissionMiddleware_AllowListedSkipsChecks(t *testing.T) {
	cfg := guardTestConfig()
	cfg.AlwaysAllow = []string{"0.0.0.0"}

	app, _ := newGuardedApp(t, cfg)

	// Even a sensitive path passes for an allow-listed address.
	resp, err := app.Test(cleanGet("/.env"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAdmissionMiddleware_StoresDecisionContext(t *testing.T) {
	cfg := guardTestConfig()
	pipeline, err := admission.Build(cfg, nil, nil, logrus.New())
	require.NoError(t, err)

	app := fiber.New()
	app.Use(middleware.NewAdmissionMiddleware(logrus.New(), pipeline).Middleware())

	var gotIP, gotFingerprint string
	app.Get("/probe", func(c *fiber.Ctx) error {
		gotIP, _ = c.Locals(common.ClientIPContextKey).(string)
		gotFingerprint, _ = c.Locals(common.FingerprintIdContextKey).(string)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(cleanGet("/probe"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, gotIP)
	assert.Len(t, gotFingerprint, 64)
}
