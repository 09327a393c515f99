package query

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownField          = errors.New("unknown field")
	ErrInvalidOperator       = errors.New("invalid operator")
	ErrInvalidOperandShape   = errors.New("invalid operand shape")
	ErrInvalidPagination     = errors.New("invalid pagination")
	ErrSchemaVersionConflict = errors.New("schema version conflict")
)

// Error codes reported to API clients.
const (
	CodeUnknownField          = "UNKNOWN_FIELD"
	CodeInvalidOperator       = "INVALID_OPERATOR"
	CodeInvalidOperandShape   = "INVALID_OPERAND_SHAPE"
	CodeInvalidPagination     = "INVALID_PAGINATION"
	CodeSchemaVersionConflict = "SCHEMA_VERSION_CONFLICT"
)

var codes = map[error]string{
	ErrUnknownField:          CodeUnknownField,
	ErrInvalidOperator:       CodeInvalidOperator,
	ErrInvalidOperandShape:   CodeInvalidOperandShape,
	ErrInvalidPagination:     CodeInvalidPagination,
	ErrSchemaVersionConflict: CodeSchemaVersionConflict,
}

// QueryError carries the offending part of a rejected query condition.
type QueryError struct {
	Code     string
	Message  string
	Field    string
	Operator string
	Value    any
	Cause    error
}

func (e *QueryError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field=%s)", msg, e.Field)
	}
	if e.Operator != "" {
		msg = fmt.Sprintf("%s (operator=%s)", msg, e.Operator)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Details returns the client-facing description of the offending input.
func (e *QueryError) Details() map[string]any {
	d := map[string]any{}
	if e.Field != "" {
		d["field"] = e.Field
	}
	if e.Operator != "" {
		d["operator"] = e.Operator
	}
	if e.Value != nil {
		d["value"] = e.Value
	}
	return d
}

func newError(cause error, msg string) *QueryError {
	return &QueryError{Code: codes[cause], Message: msg, Cause: cause}
}

func (e *QueryError) withField(name string) *QueryError {
	e.Field = name
	return e
}

func (e *QueryError) withOperator(op string) *QueryError {
	e.Operator = op
	return e
}

func (e *QueryError) withValue(v any) *QueryError {
	e.Value = v
	return e
}

// NewUnknownFieldError reports a field outside a schema's allow-list.
func NewUnknownFieldError(field string) *QueryError {
	return newError(ErrUnknownField, "field is not declared").withField(field)
}

// NewVersionConflictError reports a publish that raced an in-flight compile.
func NewVersionConflictError(schema string, started, current int) *QueryError {
	return newError(ErrSchemaVersionConflict,
		fmt.Sprintf("schema %s moved from version %d to %d during compile", schema, started, current))
}

// AsQueryError extracts a *QueryError from err.
func AsQueryError(err error) (*QueryError, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
