package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/nimbleforge/forge/lowcode/errors"
	"github.com/nimbleforge/forge/lowcode/services"
)

type RecordHandler struct {
	service services.RecordService
}

func NewRecordHandler(service services.RecordService) *RecordHandler {
	return &RecordHandler{service: service}
}

// Insert stores one record.
// Endpoint: POST /lowcode/schemas/:name/records
func (h *RecordHandler) Insert(c *fiber.Ctx) error {
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	var values map[string]interface{}
	if err := dec.Decode(&values); err != nil || values == nil {
		return errors.HandleValidationError(c, "request body must be a JSON object")
	}

	record, err := h.service.InsertRecord(c.UserContext(), c.Params("name"), values)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(record)
}

// Query pages through records of a published schema.
// Endpoint: POST /lowcode/schemas/:name/records/query
func (h *RecordHandler) Query(c *fiber.Ctx) error {
	cond, err := parseCondition(c)
	if err != nil {
		return errors.HandleValidationError(c, err.Error())
	}
	page, err := h.service.QueryRecords(c.UserContext(), c.Params("name"), cond)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(page)
}
