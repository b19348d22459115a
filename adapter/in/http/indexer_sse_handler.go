package http

import (
	"bufio"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"indexer_server/adapter/out/realtime"
)

// =============================================================================
// SSE Handler - index progress stream
// =============================================================================

// SSEHandler streams index-state events to clients.
type SSEHandler struct {
	hub *realtime.SSEHub
	log zerolog.Logger
}

// NewSSEHandler creates a new SSE handler.
func NewSSEHandler(hub *realtime.SSEHub, log zerolog.Logger) *SSEHandler {
	return &SSEHandler{
		hub: hub,
		log: log.With().Str("handler", "sse").Logger(),
	}
}

// Register registers SSE routes.
func (h *SSEHandler) Register(app fiber.Router) {
	app.Get("/v1/index/events", h.Stream)
}

// Stream handles SSE connections. The user is identified by query parameter;
// session handling is outside this service.
func (h *SSEHandler) Stream(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return ErrorResponse(c, fiber.StatusBadRequest, "user_id required")
	}

	client := h.hub.CreateClient(userID)

	h.log.Info().Str("user_id", userID).Msg("SSE client connected")

	// Set SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(client.HeartbeatInterval())
		defer ticker.Stop()
		defer func() {
			client.Close()
			h.log.Info().Str("user_id", userID).Msg("SSE client disconnected")
		}()

		// Send initial connection event
		w.WriteString("event: connected\n")
		w.WriteString("data: {\"status\":\"connected\"}\n\n")
		w.Flush()

		for {
			select {
			case event, ok := <-client.Events:
				if !ok {
					return
				}

				data, err := realtime.SerializeEvent(event)
				if err != nil {
					h.log.Error().Err(err).Msg("failed to serialize event")
					continue
				}

				w.WriteString("event: ")
				w.WriteString(string(event.Type))
				w.WriteString("\n")
				w.WriteString("data: ")
				w.Write(data)
				w.WriteString("\n\n")

				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during write")
					return
				}

			case <-ticker.C:
				// Heartbeat
				w.WriteString(": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during heartbeat")
					return
				}

			case <-client.Done:
				return
			}
		}
	})

	return nil
}
