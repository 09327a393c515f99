package errors

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/nimbleforge/forge/internal/pkg/log"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/lowcode/sequence"
)

var (
	ErrSchemaNotFound     = errors.New("schema not found")
	ErrSchemaNotPublished = errors.New("schema is not published")
	ErrSchemaExists       = errors.New("schema already exists")
	ErrInvalidSchema      = errors.New("invalid schema definition")
	ErrInvalidRecord      = errors.New("invalid record")
	ErrPageNotFound       = errors.New("page not found")
	ErrPageExists         = errors.New("page already exists")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrDatabaseOperation  = errors.New("database operation failed")
)

const (
	CodeSchemaNotFound     = "SCHEMA_NOT_FOUND"
	CodeSchemaNotPublished = "SCHEMA_NOT_PUBLISHED"
	CodeSchemaExists       = "SCHEMA_EXISTS"
	CodeInvalidSchema      = "INVALID_SCHEMA"
	CodeInvalidRecord      = "INVALID_RECORD"
	CodePageNotFound       = "PAGE_NOT_FOUND"
	CodePageExists         = "PAGE_EXISTS"
	CodeSequenceNotFound   = "SEQUENCE_NOT_FOUND"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func HandleServiceError(c *fiber.Ctx, err error) error {
	if err == nil {
		return nil
	}

	if qe, ok := query.AsQueryError(err); ok {
		status := http.StatusBadRequest
		if errors.Is(err, query.ErrSchemaVersionConflict) {
			status = http.StatusConflict
		}
		return c.Status(status).JSON(ErrorResponse{Code: qe.Code, Message: qe.Error(), Details: qe.Details()})
	}

	switch {
	case errors.Is(err, ErrSchemaNotFound):
		return respond(c, http.StatusNotFound, CodeSchemaNotFound, err)
	case errors.Is(err, ErrSchemaNotPublished):
		return respond(c, http.StatusConflict, CodeSchemaNotPublished, err)
	case errors.Is(err, ErrSchemaExists):
		return respond(c, http.StatusConflict, CodeSchemaExists, err)
	case errors.Is(err, ErrInvalidSchema):
		return respond(c, http.StatusBadRequest, CodeInvalidSchema, err)
	case errors.Is(err, ErrInvalidRecord):
		return respond(c, http.StatusBadRequest, CodeInvalidRecord, err)
	case errors.Is(err, ErrPageNotFound):
		return respond(c, http.StatusNotFound, CodePageNotFound, err)
	case errors.Is(err, ErrPageExists):
		return respond(c, http.StatusConflict, CodePageExists, err)
	case errors.Is(err, sequence.ErrUnknownRule):
		return respond(c, http.StatusNotFound, CodeSequenceNotFound, err)
	case errors.Is(err, sequence.ErrCounterFailed):
		return respond(c, http.StatusServiceUnavailable, CodeServiceUnavailable, err)
	case errors.Is(err, ErrInvalidRequest):
		return respond(c, http.StatusBadRequest, CodeInvalidRequest, err)
	case errors.Is(err, ErrDatabaseOperation):
		return respond(c, http.StatusServiceUnavailable, CodeDatabaseError, err)
	default:
		log.ErrorWithContext(c.UserContext(), "lowcode: unhandled error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{Code: CodeInternalError, Message: "An unexpected error occurred"})
	}
}

func respond(c *fiber.Ctx, status int, code string, err error) error {
	return c.Status(status).JSON(ErrorResponse{Code: code, Message: err.Error()})
}

func HandleValidationError(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Code: CodeInvalidRequest, Message: message})
}
