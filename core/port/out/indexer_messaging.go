package out

import (
	"context"

	"indexer_server/core/domain"
)

// BackfillJob asks the worker to run a backfill for one user down to an
// end timestamp (epoch-ms). The user rides along; the indexer has no
// directory of its own.
type BackfillJob struct {
	User         domain.User `json:"user"`
	EndTimestamp int64       `json:"end_timestamp"`
}

// MessageProducer - job publication onto the stream transport.
type MessageProducer interface {
	PublishBackfill(ctx context.Context, job *BackfillJob) error

	PublishEntityEvents(ctx context.Context, batch *domain.EventBatch) error
}
