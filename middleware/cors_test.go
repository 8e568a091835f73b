package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow/engine/config"
)

func testApp(cfg CORSConfig) *fiber.App {
	app := fiber.New()
	app.Use(CORS(cfg))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	return app
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	app := testApp(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}, MaxAge: 600})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSOmitsOriginHeaderForUnlistedOrigin(t *testing.T) {
	app := testApp(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightSetsMaxAgeAsDecimalSeconds(t *testing.T) {
	app := testApp(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}, MaxAge: 3600})

	req := httptest.NewRequest("OPTIONS", "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "3600", resp.Header.Get("Access-Control-Max-Age"))
}

func TestCORSConfigFromAppConfigCarriesOrigins(t *testing.T) {
	cfg := CORSConfigFromAppConfig(config.Config{
		CORSAllowedOrigins:   []string{"https://app.example.com"},
		CORSAllowCredentials: true,
		CORSMaxAge:           120,
	})
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.AllowCredentials)
	assert.Equal(t, 120, cfg.MaxAge)
}
