package worker

import (
	"context"
	"fmt"

	"indexer_server/core/port/in"
	"indexer_server/pkg/logger"
)

// IndexProcessor handles index-related jobs.
type IndexProcessor struct {
	indexService in.MailIndexService
}

// NewIndexProcessor creates a new index processor.
func NewIndexProcessor(indexService in.MailIndexService) *IndexProcessor {
	return &IndexProcessor{indexService: indexService}
}

// ProcessBackfill runs one backfill down to the requested horizon. A backfill
// failure leaves the job unacked; the stream layer retries it, which is safe
// because re-tokenization is idempotent at the posting level.
func (p *IndexProcessor) ProcessBackfill(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[BackfillPayload](msg)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	logger.Info("[IndexProcessor.ProcessBackfill] user=%s, endTimestamp=%d",
		payload.User.ID, payload.EndTimestamp)

	return p.indexService.IndexMailboxes(ctx, &payload.User, payload.EndTimestamp)
}

// ProcessEntityEvents applies one entity-update batch.
func (p *IndexProcessor) ProcessEntityEvents(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[EntityEventsPayload](msg)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	logger.Debug("[IndexProcessor.ProcessEntityEvents] batch=%s, group=%s, events=%d",
		payload.Batch.BatchID, payload.Batch.GroupID, len(payload.Batch.Events))

	return p.indexService.ProcessEntityEvents(ctx, &payload.Batch)
}
