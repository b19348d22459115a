package in

import (
	"context"

	"indexer_server/core/domain"
)

// MailIndexService - the indexer's host-facing surface.
type MailIndexService interface {
	// Enable resolves spam exclusions, persists the enabled flag, and kicks
	// off the initial backfill without awaiting it. Idempotent: a second
	// enable only reloads the excluded-list set.
	Enable(ctx context.Context, user *domain.User) error

	// Disable clears in-memory state and deletes all indexer-owned storage.
	Disable(ctx context.Context) error

	// Cancel requests cooperative cancellation of a running backfill.
	Cancel()

	// IndexMailboxes brings every mail group's cursor at least as old as
	// endTimestamp (epoch-ms). Blocking; the worker layer runs it async.
	IndexMailboxes(ctx context.Context, user *domain.User, endTimestamp int64) error

	// ProcessEntityEvents applies one ordered event batch to the index.
	ProcessEntityEvents(ctx context.Context, batch *domain.EventBatch) error

	// State returns the current host-visible snapshot.
	State(ctx context.Context) domain.IndexState
}
