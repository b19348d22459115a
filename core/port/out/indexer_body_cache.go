package out

import (
	"context"

	"indexer_server/core/domain"
)

// BodyCache - read-through cache for mail bodies in front of the entity
// fetcher. Backfill re-walks after a mid-group failure hit the cache instead
// of re-downloading; entries expire on their own TTL.
type BodyCache interface {
	// GetBody returns the cached body, or nil on a miss.
	GetBody(ctx context.Context, bodyID string) (*domain.MailBody, error)

	SaveBody(ctx context.Context, body *domain.MailBody) error

	// Purge drops the whole cache (disable path).
	Purge(ctx context.Context) error
}
