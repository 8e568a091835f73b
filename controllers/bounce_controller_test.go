package controller

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow/engine/internal/bounce"
)

func bounceTestApp(rpm int) (*fiber.App, *BounceController) {
	bc := NewBounceController(bounce.New(), rpm)
	app := fiber.New()
	app.Post("/api/bounce", bc.Report)
	return app, bc
}

func TestReportRecordsAndReturnsReporterCount(t *testing.T) {
	app, _ := bounceTestApp(5)

	req := httptest.NewRequest("POST", "/api/bounce", bytes.NewBufferString(`{"email":"user@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"recorded":true,"uniqueReporters":1}`, string(body))
}

func TestReportIsRateLimitedPerIP(t *testing.T) {
	app, _ := bounceTestApp(1)

	for i := 0; i < 1; i++ {
		req := httptest.NewRequest("POST", "/api/bounce", bytes.NewBufferString(`{"email":"user@example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	req := httptest.NewRequest("POST", "/api/bounce", bytes.NewBufferString(`{"email":"user@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestReportRejectsInvalidEmail(t *testing.T) {
	app, _ := bounceTestApp(5)

	req := httptest.NewRequest("POST", "/api/bounce", bytes.NewBufferString(`{"email":"not-an-email"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
