package middleware_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EdgeWard/WardGate/pkg/config"
	"github.com/EdgeWard/WardGate/pkg/infra/jwt"
	"github.com/EdgeWard/WardGate/pkg/middleware"
)

const adminTestSecret = "admin-test-secret"

func newAdminApp(t *testing.T) *fiber.App {
	t.Helper()
	manager := jwt.NewJwtManager(&config.ServerConfig{SecretKey: adminTestSecret})

	app := fiber.New()
	app.Use(middleware.NewAdminAuthMiddleware(logrus.New(), manager).Middleware())
	app.Get("/api/v1/guard/status", func(c *fiber.Ctx) error {
		return c.SendString("status ok")
	})
	return app
}

func adminGet(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/guard/status", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeAuthError(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestAdminAuth_AcceptsAdminToken(t *testing.T) {
	app := newAdminApp(t)
	manager := jwt.NewJwtManager(&config.ServerConfig{SecretKey: adminTestSecret})
	token, err := manager.CreateToken()
	require.NoError(t, err)

	resp, err := app.Test(adminGet(token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminAuth_RejectsMissingHeader(t *testing.T) {
	app := newAdminApp(t)

	resp, err := app.Test(adminGet(""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeAuthError(t, resp)
	assert.Equal(t, "authorization required", body["error"])
	assert.Equal(t, "unauthorized", body["code"])
}

func TestAdminAuth_RejectsNonBearerHeader(t *testing.T) {
	app := newAdminApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/guard/status", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeAuthError(t, resp)
	assert.Equal(t, "unauthorized", body["code"])
}

func TestAdminAuth_RejectsWrongSubject(t *testing.T) {
	app := newAdminApp(t)

	// Well signed with the shared secret, but for a different subject.
	claims := &jwt.Claims{RegisteredClaims: jwtlib.RegisteredClaims{
		Subject:  "reporting-service",
		IssuedAt: jwtlib.NewNumericDate(time.Now()),
	}}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(adminTestSecret))
	require.NoError(t, err)

	resp, err := app.Test(adminGet(signed))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeAuthError(t, resp)
	assert.Equal(t, "token subject is not authorized", body["error"])
	assert.Equal(t, "unauthorized", body["code"])
}

func TestAdminAuth_RejectsExpiredToken(t *testing.T) {
	app := newAdminApp(t)

	claims := &jwt.Claims{RegisteredClaims: jwtlib.RegisteredClaims{
		Subject:   jwt.AdminSubject,
		IssuedAt:  jwtlib.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Hour)),
	}}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(adminTestSecret))
	require.NoError(t, err)

	resp, err := app.Test(adminGet(signed))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeAuthError(t, resp)
	assert.Equal(t, "token expired", body["error"])
}
