package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/nimbleforge/forge/lowcode/errors"
	"github.com/nimbleforge/forge/lowcode/models"
)

// SequenceIssuer is the part of sequence.Generator the handler needs.
type SequenceIssuer interface {
	Next(ctx context.Context, name string) (string, error)
}

type SequenceHandler struct {
	sequences SequenceIssuer
}

func NewSequenceHandler(sequences SequenceIssuer) *SequenceHandler {
	return &SequenceHandler{sequences: sequences}
}

// Next issues the next value of a registered sequence.
// Endpoint: POST /lowcode/sequences/:name/next
func (h *SequenceHandler) Next(c *fiber.Ctx) error {
	name := c.Params("name")
	value, err := h.sequences.Next(c.UserContext(), name)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.JSON(models.SequenceResponse{Name: name, Value: value})
}
