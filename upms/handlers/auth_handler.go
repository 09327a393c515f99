package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	uuid "github.com/gofrs/uuid"
	"github.com/nimbleforge/forge/internal/middleware/authjwt"
	"github.com/nimbleforge/forge/internal/types"
	"github.com/nimbleforge/forge/upms/errors"
	"github.com/nimbleforge/forge/upms/models"
	"github.com/nimbleforge/forge/upms/services"
)

// PermissionChecker answers permission checks for a user.
type PermissionChecker interface {
	Enforce(userID uuid.UUID, resource, action string) (bool, error)
}

type AuthHandler struct {
	service services.AuthService
	checker PermissionChecker
}

func NewAuthHandler(service services.AuthService, checker PermissionChecker) *AuthHandler {
	return &AuthHandler{service: service, checker: checker}
}

// Login exchanges credentials for an access token, also set as a cookie.
// Endpoint: POST /upms/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.HandleValidationError(c, "invalid request body")
	}
	resp, err := h.service.Login(c.UserContext(), &req)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	c.Cookie(&fiber.Cookie{
		Name:     types.AccessTokenName,
		Value:    resp.AccessToken,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.UnixMilli(resp.ExpiresAt),
	})
	return c.JSON(resp)
}

type permissionQuery struct {
	Resource string `query:"resource"`
	Action   string `query:"action"`
}

// Check reports whether the caller may perform action on resource.
// Endpoint: GET /upms/permissions/check?resource=&action=
func (h *AuthHandler) Check(c *fiber.Ctx) error {
	user, ok := authjwt.CurrentUser(c)
	if !ok {
		return errors.HandleUnauthorized(c, "authentication required")
	}
	var q permissionQuery
	if err := c.QueryParser(&q); err != nil || q.Resource == "" || q.Action == "" {
		return errors.HandleValidationError(c, "resource and action are required")
	}
	allowed, err := h.checker.Enforce(user.UserID, q.Resource, q.Action)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(models.PermissionCheckResponse{Resource: q.Resource, Action: q.Action, Allowed: allowed})
}
