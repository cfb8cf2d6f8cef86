package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradreach/config"
)

func corsTestApp(t *testing.T, origins []string) *fiber.App {
	t.Helper()
	old := config.AppConfig.CORSOrigins
	config.AppConfig.CORSOrigins = origins
	t.Cleanup(func() { config.AppConfig.CORSOrigins = old })

	app := fiber.New()
	app.Use(CORS())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	return app
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	app := corsTestApp(t, []string{"http://localhost:3000"})

	req := httptest.NewRequest(fiber.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	// Unknown origins get no grant
	req = httptest.NewRequest(fiber.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	app := corsTestApp(t, []string{"http://localhost:3000"})

	req := httptest.NewRequest(fiber.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Equal(t, "3600", resp.Header.Get("Access-Control-Max-Age"))
}
