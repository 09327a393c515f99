package handlers

import (
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/nimbleforge/forge/internal/pagination"
	"github.com/nimbleforge/forge/lowcode/errors"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/services"
)

type PageHandler struct {
	service services.PageService
}

func NewPageHandler(service services.PageService) *PageHandler {
	return &PageHandler{service: service}
}

// Create stores a page layout.
// Endpoint: POST /lowcode/pages
func (h *PageHandler) Create(c *fiber.Ctx) error {
	var req models.CreatePageRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.HandleValidationError(c, "invalid request body")
	}
	page, err := h.service.CreatePage(c.UserContext(), &req)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(models.ToPageResponse(page))
}

// List returns pages.
// Endpoint: GET /lowcode/pages?size=&current=&sort=&order=
func (h *PageHandler) List(c *fiber.Ctx) error {
	values := url.Values{}
	for k, v := range c.Queries() {
		values.Set(k, v)
	}
	req, err := pagination.DecodeRequest(values)
	if err != nil {
		return errors.HandleValidationError(c, err.Error())
	}
	page, err := h.service.ListPages(c.UserContext(), req)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(page)
}

// Get returns one page.
// Endpoint: GET /lowcode/pages/:name
func (h *PageHandler) Get(c *fiber.Ctx) error {
	page, err := h.service.GetPage(c.UserContext(), c.Params("name"))
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(models.ToPageResponse(page))
}

// Delete removes a page.
// Endpoint: DELETE /lowcode/pages/:name
func (h *PageHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.DeletePage(c.UserContext(), c.Params("name")); err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}
