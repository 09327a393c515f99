package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/lowcode/errors"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/services"
)

type SchemaHandler struct {
	service services.SchemaService
}

func NewSchemaHandler(service services.SchemaService) *SchemaHandler {
	return &SchemaHandler{service: service}
}

// parseCondition reads a QueryCondition from the request body; an empty body
// selects the first page of everything.
func parseCondition(c *fiber.Ctx) (*query.QueryCondition, error) {
	return query.ParseCondition(c.Body())
}

// Create registers a new schema as a draft.
// Endpoint: POST /lowcode/schemas
func (h *SchemaHandler) Create(c *fiber.Ctx) error {
	var req models.CreateSchemaRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.HandleValidationError(c, "invalid request body")
	}

	def, err := h.service.CreateSchema(c.UserContext(), &req)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(models.ToSchemaResponse(def))
}

// Get returns the head version of a schema.
// Endpoint: GET /lowcode/schemas/:name
func (h *SchemaHandler) Get(c *fiber.Ctx) error {
	def, err := h.service.GetSchema(c.UserContext(), c.Params("name"))
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(models.ToSchemaResponse(def))
}

// Query lists schemas matching a query condition.
// Endpoint: POST /lowcode/schemas/query
func (h *SchemaHandler) Query(c *fiber.Ctx) error {
	cond, err := parseCondition(c)
	if err != nil {
		return errors.HandleValidationError(c, err.Error())
	}
	page, err := h.service.QuerySchemas(c.UserContext(), cond)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(page)
}

// UpdateDraft replaces the draft field list.
// Endpoint: PUT /lowcode/schemas/:name/draft
func (h *SchemaHandler) UpdateDraft(c *fiber.Ctx) error {
	var req models.UpdateDraftRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.HandleValidationError(c, "invalid request body")
	}
	def, err := h.service.UpdateDraft(c.UserContext(), c.Params("name"), &req)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(models.ToSchemaResponse(def))
}

// Publish makes the draft the live version.
// Endpoint: POST /lowcode/schemas/:name/publish
func (h *SchemaHandler) Publish(c *fiber.Ctx) error {
	def, err := h.service.PublishSchema(c.UserContext(), c.Params("name"))
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(models.ToSchemaResponse(def))
}
