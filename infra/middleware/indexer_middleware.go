package middleware

import (
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"indexer_server/pkg/apperr"
	"indexer_server/pkg/logger"
)

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler is the centralized error handler for Fiber
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID, _ := c.Locals("request_id").(string)

		response := ErrorResponse{
			Success:   false,
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		var status int
		switch e := err.(type) {
		case *apperr.AppError:
			status = e.Status
			response.Error = ErrorDetail{
				Code:    e.Code,
				Message: e.Message,
				Details: e.Details,
			}

			log := logger.WithField("request_id", requestID).
				WithField("error_code", e.Code).
				WithError(e.Err)
			if status >= 500 {
				log.Error("Internal error: %s", e.Message)
			} else {
				log.Warn("Client error: %s", e.Message)
			}

		case *fiber.Error:
			status = e.Code
			response.Error = ErrorDetail{
				Code:    apperr.CodeBadRequest,
				Message: e.Message,
			}

		default:
			status = fiber.StatusInternalServerError
			response.Error = ErrorDetail{
				Code:    apperr.CodeInternalError,
				Message: "An unexpected error occurred",
			}

			logger.WithField("request_id", requestID).
				WithError(err).
				WithField("stack", string(debug.Stack())).
				Error("Unexpected error: %s", err.Error())
		}

		return c.Status(status).JSON(response)
	}
}

// RequestID middleware adds a unique request ID to each request
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Locals("request_id", requestID)
		c.Set("X-Request-ID", requestID)
		return c.Next()
	}
}

// RequestLogger logs incoming requests and their responses
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID, _ := c.Locals("request_id").(string)

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()

		log := logger.WithFields(map[string]any{
			"request_id":  requestID,
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": float64(duration.Microseconds()) / 1000.0,
			"ip":          c.IP(),
		})

		switch {
		case status >= 500:
			log.Error("Request failed: %s %s -> %d", c.Method(), c.Path(), status)
		case status >= 400:
			log.Warn("Request error: %s %s -> %d", c.Method(), c.Path(), status)
		default:
			log.Debug("Request: %s %s -> %d", c.Method(), c.Path(), status)
		}

		return err
	}
}

// Recover converts panics in handlers into 500 responses
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("stack", string(debug.Stack())).
					Error("Panic recovered: %v", r)
				err = apperr.Internal("")
			}
		}()
		return c.Next()
	}
}
