package errors

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"hidden field", query.NewUnknownFieldError("passwordHash"), 400, query.CodeUnknownField},
		{"user missing", fmt.Errorf("get: %w", ErrUserNotFound), 404, CodeUserNotFound},
		{"user exists", ErrUserExists, 409, CodeUserExists},
		{"locked", ErrUserLocked, 403, CodeUserLocked},
		{"credentials", ErrInvalidCredentials, 401, CodeInvalidCredentials},
		{"weak password", fmt.Errorf("%w: score 1", ErrWeakPassword), 400, CodeWeakPassword},
		{"role missing", ErrRoleNotFound, 404, CodeRoleNotFound},
		{"permission missing", ErrPermissionNotFound, 404, CodePermissionNotFound},
		{"database", ErrDatabaseOperation, 503, CodeDatabaseError},
		{"other", fmt.Errorf("boom"), 500, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return HandleServiceError(c, tt.err) })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestHandleForbidden(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return HandleForbidden(c, "permission denied") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, CodeForbidden, body.Code)
	assert.Equal(t, "permission denied", body.Message)
}
