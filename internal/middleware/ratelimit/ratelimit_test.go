package ratelimit

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nimbleforge/forge/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedApp(handler fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ProxyHeader: "X-Real-IP"})
	app.Use(handler)
	app.Post("/test", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true})
	})
	return app
}

func post(t *testing.T, app *fiber.App, ip string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/test", strings.NewReader("{}"))
	req.Header.Set(types.HeaderContentType, "application/json")
	req.Header.Set("X-Real-IP", ip)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestLoginLimiter_RejectsExcessiveRequests(t *testing.T) {
	app := newLimitedApp(NewLoginLimiter(nil, nil))

	for i := 0; i < 5; i++ {
		status, _ := post(t, app, "192.168.1.1")
		assert.Equal(t, 200, status)
	}

	status, body := post(t, app, "192.168.1.1")
	assert.Equal(t, 429, status)
	assert.Contains(t, body, "RATE_LIMIT_EXCEEDED")
	assert.Contains(t, body, "login")
}

func TestLoginLimiter_DifferentIPsIndependent(t *testing.T) {
	limits := &EndpointLimits{LoginMaxRequests: 1, LoginWindowDuration: time.Minute}
	app := newLimitedApp(NewLoginLimiter(limits, nil))

	status, _ := post(t, app, "10.0.0.1")
	assert.Equal(t, 200, status)
	status, _ = post(t, app, "10.0.0.1")
	assert.Equal(t, 429, status)

	status, _ = post(t, app, "10.0.0.2")
	assert.Equal(t, 200, status)
}

func TestPasswordChangeLimiter_CustomLimits(t *testing.T) {
	limits := &EndpointLimits{PasswordChangeMaxRequests: 2, PasswordChangeWindowDuration: time.Hour}
	app := newLimitedApp(NewPasswordChangeLimiter(limits, nil))

	for i := 0; i < 2; i++ {
		status, _ := post(t, app, "10.0.0.9")
		assert.Equal(t, 200, status)
	}
	status, body := post(t, app, "10.0.0.9")
	assert.Equal(t, 429, status)
	assert.Contains(t, body, "password change")
	assert.Contains(t, body, `"retryAfter":3600`)
}
