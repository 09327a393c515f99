package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/upms/errors"
	"github.com/nimbleforge/forge/upms/models"
	"github.com/nimbleforge/forge/upms/services"
)

type RoleHandler struct {
	service services.RoleService
}

func NewRoleHandler(service services.RoleService) *RoleHandler {
	return &RoleHandler{service: service}
}

// Create adds a role.
// Endpoint: POST /upms/roles
func (h *RoleHandler) Create(c *fiber.Ctx) error {
	var req models.CreateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.HandleValidationError(c, "invalid request body")
	}
	role, err := h.service.CreateRole(c.UserContext(), &req)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(models.ToRoleResponse(role))
}

// Query lists roles matching a query condition.
// Endpoint: POST /upms/roles/query
func (h *RoleHandler) Query(c *fiber.Ctx) error {
	cond, err := query.ParseCondition(c.Body())
	if err != nil {
		return errors.HandleValidationError(c, err.Error())
	}
	page, err := h.service.QueryRoles(c.UserContext(), cond)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(page)
}

// Grant adds a permission to the role.
// Endpoint: POST /upms/roles/:code/permissions
func (h *RoleHandler) Grant(c *fiber.Ctx) error {
	var req models.PermissionRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.HandleValidationError(c, "invalid request body")
	}
	p, err := h.service.GrantPermission(c.UserContext(), c.Params("code"), &req)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(p)
}

// Revoke removes a permission from the role.
// Endpoint: DELETE /upms/roles/:code/permissions
func (h *RoleHandler) Revoke(c *fiber.Ctx) error {
	var req models.PermissionRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.HandleValidationError(c, "invalid request body")
	}
	if err := h.service.RevokePermission(c.UserContext(), c.Params("code"), &req); err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}
