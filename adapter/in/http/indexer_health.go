package http

import (
	"github.com/gofiber/fiber/v2"

	"indexer_server/core/port/in"
)

// HealthHandler reports liveness and the indexer snapshot.
type HealthHandler struct {
	indexService in.MailIndexService
}

func NewHealthHandler(indexService in.MailIndexService) *HealthHandler {
	return &HealthHandler{indexService: indexService}
}

func (h *HealthHandler) Register(app fiber.Router) {
	app.Get("/health", h.Health)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return SuccessResponse(c, fiber.Map{
		"status": "ok",
		"index":  h.indexService.State(c.Context()),
	})
}
