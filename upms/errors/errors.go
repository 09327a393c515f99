package errors

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/nimbleforge/forge/internal/pkg/log"
	"github.com/nimbleforge/forge/internal/query"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrUserLocked         = errors.New("user is locked")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakPassword       = errors.New("password is too weak")
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleExists         = errors.New("role already exists")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrDatabaseOperation  = errors.New("database operation failed")
)

const (
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeUserExists         = "USER_EXISTS"
	CodeUserLocked         = "USER_LOCKED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeWeakPassword       = "WEAK_PASSWORD"
	CodeRoleNotFound       = "ROLE_NOT_FOUND"
	CodeRoleExists         = "ROLE_EXISTS"
	CodePermissionNotFound = "PERMISSION_NOT_FOUND"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeDatabaseError      = "DATABASE_ERROR"
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
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Code: qe.Code, Message: qe.Error(), Details: qe.Details()})
	}

	switch {
	case errors.Is(err, ErrUserNotFound):
		return respond(c, http.StatusNotFound, CodeUserNotFound, err)
	case errors.Is(err, ErrUserExists):
		return respond(c, http.StatusConflict, CodeUserExists, err)
	case errors.Is(err, ErrUserLocked):
		return respond(c, http.StatusForbidden, CodeUserLocked, err)
	case errors.Is(err, ErrInvalidCredentials):
		return respond(c, http.StatusUnauthorized, CodeInvalidCredentials, err)
	case errors.Is(err, ErrWeakPassword):
		return respond(c, http.StatusBadRequest, CodeWeakPassword, err)
	case errors.Is(err, ErrRoleNotFound):
		return respond(c, http.StatusNotFound, CodeRoleNotFound, err)
	case errors.Is(err, ErrRoleExists):
		return respond(c, http.StatusConflict, CodeRoleExists, err)
	case errors.Is(err, ErrPermissionNotFound):
		return respond(c, http.StatusNotFound, CodePermissionNotFound, err)
	case errors.Is(err, ErrInvalidRequest):
		return respond(c, http.StatusBadRequest, CodeInvalidRequest, err)
	case errors.Is(err, ErrDatabaseOperation):
		return respond(c, http.StatusServiceUnavailable, CodeDatabaseError, err)
	default:
		log.ErrorWithContext(c.UserContext(), "upms: unhandled error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{Code: CodeInternalError, Message: "An unexpected error occurred"})
	}
}

func respond(c *fiber.Ctx, status int, code string, err error) error {
	return c.Status(status).JSON(ErrorResponse{Code: code, Message: err.Error()})
}

func HandleValidationError(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Code: CodeInvalidRequest, Message: message})
}

func HandleUnauthorized(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusUnauthorized).JSON(ErrorResponse{Code: CodeUnauthorized, Message: message})
}

func HandleForbidden(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusForbidden).JSON(ErrorResponse{Code: CodeForbidden, Message: message})
}
