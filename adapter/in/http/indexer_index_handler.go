package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"indexer_server/core/domain"
	"indexer_server/core/port/in"
	"indexer_server/core/port/out"
	"indexer_server/pkg/generatedid"
)

// =============================================================================
// Index Handler - control plane of the mail indexer
// =============================================================================

// IndexHandler exposes enable/disable/cancel/extend and the state snapshot.
type IndexHandler struct {
	indexService in.MailIndexService
	producer     out.MessageProducer
	log          zerolog.Logger
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(indexService in.MailIndexService, producer out.MessageProducer, log zerolog.Logger) *IndexHandler {
	return &IndexHandler{
		indexService: indexService,
		producer:     producer,
		log:          log.With().Str("handler", "index").Logger(),
	}
}

// Register registers index routes.
func (h *IndexHandler) Register(app fiber.Router) {
	v1 := app.Group("/v1/index")
	v1.Post("/enable", h.Enable)
	v1.Post("/disable", h.Disable)
	v1.Post("/cancel", h.Cancel)
	v1.Post("/extend", h.Extend)
	v1.Get("/state", h.State)
}

type enableRequest struct {
	User domain.User `json:"user"`
}

// Enable turns indexing on and kicks off the initial backfill.
func (h *IndexHandler) Enable(c *fiber.Ctx) error {
	var req enableRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.User.ID == "" || len(req.User.Memberships) == 0 {
		return ErrorResponse(c, fiber.StatusBadRequest, "user with memberships required")
	}

	if err := h.indexService.Enable(c.Context(), &req.User); err != nil {
		h.log.Error().Err(err).Str("user_id", req.User.ID).Msg("enable failed")
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, h.indexService.State(c.Context()))
}

// Disable wipes the index.
func (h *IndexHandler) Disable(c *fiber.Ctx) error {
	if err := h.indexService.Disable(c.Context()); err != nil {
		h.log.Error().Err(err).Msg("disable failed")
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, h.indexService.State(c.Context()))
}

// Cancel requests cooperative cancellation of a running backfill.
func (h *IndexHandler) Cancel(c *fiber.Ctx) error {
	h.indexService.Cancel()
	return SuccessResponse(c, h.indexService.State(c.Context()))
}

type extendRequest struct {
	User    domain.User `json:"user"`
	EndDays int         `json:"end_days"` // walk back this many days from now
}

// Extend queues a backfill job down to an older cutoff.
func (h *IndexHandler) Extend(c *fiber.Ctx) error {
	var req extendRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.User.ID == "" || req.EndDays <= 0 {
		return ErrorResponse(c, fiber.StatusBadRequest, "user and positive end_days required")
	}

	endTs := generatedid.StartOfDayShifted(time.Now(), -req.EndDays).UnixMilli()
	if err := h.producer.PublishBackfill(c.Context(), &out.BackfillJob{
		User:         req.User,
		EndTimestamp: endTs,
	}); err != nil {
		h.log.Error().Err(err).Str("user_id", req.User.ID).Msg("failed to queue backfill")
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{"end_timestamp": endTs})
}

// State returns the current index snapshot.
func (h *IndexHandler) State(c *fiber.Ctx) error {
	return SuccessResponse(c, h.indexService.State(c.Context()))
}
