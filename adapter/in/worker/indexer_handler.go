package worker

import (
	"context"

	"indexer_server/pkg/logger"
)

type Handler struct {
	indexProcessor *IndexProcessor
}

func NewHandler(indexProcessor *IndexProcessor) *Handler {
	return &Handler{indexProcessor: indexProcessor}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing message: %s", msg.Type)

	switch msg.Type {
	case JobIndexBackfill:
		return h.indexProcessor.ProcessBackfill(ctx, msg)
	case JobIndexEvents:
		return h.indexProcessor.ProcessEntityEvents(ctx, msg)
	default:
		logger.Warn("Unknown job type: %s", msg.Type)
		return nil
	}
}
