package http

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"indexer_server/pkg/apperr"
)

// =============================================================================
// Response envelope
// =============================================================================

type APIResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp string    `json:"timestamp"`
}

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func mapStatusToCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return apperr.CodeBadRequest
	case http.StatusNotFound:
		return apperr.CodeNotFound
	case http.StatusForbidden:
		return apperr.CodeNotAuthorized
	case http.StatusConflict:
		return apperr.CodeConflict
	case http.StatusPreconditionFailed:
		return apperr.CodePreconditionFailed
	default:
		return apperr.CodeInternalError
	}
}

func ErrorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success:   false,
		Error:     &APIError{Code: mapStatusToCode(status), Message: message},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// AppErrorResponse renders a structured application error.
func AppErrorResponse(c *fiber.Ctx, err error) error {
	appErr := apperr.AsAppError(err)
	return c.Status(appErr.HTTPStatus()).JSON(APIResponse{
		Success:   false,
		Error:     &APIError{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func SuccessResponse(c *fiber.Ctx, data any) error {
	return c.JSON(APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
