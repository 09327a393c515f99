package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	uuid "github.com/gofrs/uuid"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/upms/errors"
	"github.com/nimbleforge/forge/upms/models"
	"github.com/nimbleforge/forge/upms/services"
)

type UserHandler struct {
	service services.UserService
}

func NewUserHandler(service services.UserService) *UserHandler {
	return &UserHandler{service: service}
}

func parseUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Params("id"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Create registers a user.
// Endpoint: POST /upms/users
func (h *UserHandler) Create(c *fiber.Ctx) error {
	var req models.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.HandleValidationError(c, "invalid request body")
	}
	user, err := h.service.CreateUser(c.UserContext(), &req)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(models.ToUserResponse(user))
}

// Get returns one user.
// Endpoint: GET /upms/users/:id
func (h *UserHandler) Get(c *fiber.Ctx) error {
	id, ok := parseUserID(c)
	if !ok {
		return errors.HandleValidationError(c, "invalid user id")
	}
	user, err := h.service.GetUser(c.UserContext(), id)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(models.ToUserResponse(user))
}

// Query lists users matching a query condition.
// Endpoint: POST /upms/users/query
func (h *UserHandler) Query(c *fiber.Ctx) error {
	cond, err := query.ParseCondition(c.Body())
	if err != nil {
		return errors.HandleValidationError(c, err.Error())
	}
	page, err := h.service.QueryUsers(c.UserContext(), cond)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(page)
}

// UpdateStatus locks or unlocks a user.
// Endpoint: PUT /upms/users/:id/status
func (h *UserHandler) UpdateStatus(c *fiber.Ctx) error {
	id, ok := parseUserID(c)
	if !ok {
		return errors.HandleValidationError(c, "invalid user id")
	}
	var req models.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.HandleValidationError(c, "invalid request body")
	}
	user, err := h.service.UpdateStatus(c.UserContext(), id, req.Status)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(models.ToUserResponse(user))
}

// AssignRoles replaces the user's roles.
// Endpoint: PUT /upms/users/:id/roles
func (h *UserHandler) AssignRoles(c *fiber.Ctx) error {
	id, ok := parseUserID(c)
	if !ok {
		return errors.HandleValidationError(c, "invalid user id")
	}
	var req models.AssignRolesRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.HandleValidationError(c, "invalid request body")
	}
	user, err := h.service.AssignRoles(c.UserContext(), id, req.Roles)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(models.ToUserResponse(user))
}

// ChangePassword sets a new password after checking the old one.
// Endpoint: PUT /upms/users/:id/password
func (h *UserHandler) ChangePassword(c *fiber.Ctx) error {
	id, ok := parseUserID(c)
	if !ok {
		return errors.HandleValidationError(c, "invalid user id")
	}
	var req models.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.HandleValidationError(c, "invalid request body")
	}
	if err := h.service.ChangePassword(c.UserContext(), id, &req); err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}
