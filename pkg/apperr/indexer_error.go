package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Resource errors
	CodeNotFound      = "NOT_FOUND"
	CodeNotAuthorized = "NOT_AUTHORIZED"
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeConflict      = "CONFLICT"

	// Validation errors
	CodeBadRequest   = "BAD_REQUEST"
	CodeInvalidInput = "INVALID_INPUT"
	CodeMissingField = "MISSING_FIELD"

	// Indexing errors
	CodeCancelled          = "CANCELLED"
	CodeIndexingDisabled   = "INDEXING_DISABLED"
	CodePreconditionFailed = "PRECONDITION_FAILED"

	// External errors
	CodeDatabaseError = "DATABASE_ERROR"
	CodeExternalError = "EXTERNAL_ERROR"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is makes two AppErrors with the same code match under errors.Is, so the
// shared sentinels below compare by code rather than by pointer.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Resource errors
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

func NotAuthorized(resource string) *AppError {
	return &AppError{
		Code:    CodeNotAuthorized,
		Message: fmt.Sprintf("not authorized for %s", resource),
		Status:  http.StatusForbidden,
	}
}

func AlreadyExists(resource string) *AppError {
	return &AppError{
		Code:    CodeAlreadyExists,
		Message: fmt.Sprintf("%s already exists", resource),
		Status:  http.StatusConflict,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

// Indexing errors
func Cancelled(operation string) *AppError {
	return &AppError{
		Code:    CodeCancelled,
		Message: fmt.Sprintf("%s cancelled", operation),
		Status:  http.StatusConflict,
	}
}

func PreconditionFailed(message string) *AppError {
	return &AppError{
		Code:    CodePreconditionFailed,
		Message: message,
		Status:  http.StatusPreconditionFailed,
	}
}

// External errors
func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ExternalError(service string, err error) *AppError {
	return &AppError{
		Code:    CodeExternalError,
		Message: fmt.Sprintf("external service error: %s", service),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// Common error instances
var (
	ErrNotFound      = NotFound("resource")
	ErrNotAuthorized = NotAuthorized("resource")
	ErrBadRequest    = BadRequest("bad request")
	ErrInternal      = Internal("")
	ErrConflict      = Conflict("resource conflict")

	// ErrCancelled unwinds a backfill from its innermost checkpoint. It is
	// suppressed once at the top of the backfill and must never escape to
	// the host as a failure.
	ErrCancelled = Cancelled("indexing")
)

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

// IsCode reports whether err carries the given application error code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return IsCode(err, CodeNotFound) }

// IsNotAuthorized reports whether err is a NOT_AUTHORIZED error.
func IsNotAuthorized(err error) bool { return IsCode(err, CodeNotAuthorized) }

// IsCancelled reports whether err is the cooperative cancellation sentinel.
func IsCancelled(err error) bool { return IsCode(err, CodeCancelled) }

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
