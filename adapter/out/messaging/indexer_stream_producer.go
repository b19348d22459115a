// Package messaging provides message queue adapters.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"indexer_server/core/domain"
	"indexer_server/core/port/out"
)

// Stream names
const (
	StreamIndexBackfill = "index:backfill"
	StreamIndexEvents   = "index:events"
)

// RedisProducer implements out.MessageProducer using Redis Streams.
type RedisProducer struct {
	client *redis.Client
}

var _ out.MessageProducer = (*RedisProducer)(nil)

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// PublishBackfill publishes a backfill trigger.
func (p *RedisProducer) PublishBackfill(ctx context.Context, job *out.BackfillJob) error {
	return p.publish(ctx, StreamIndexBackfill, job)
}

// PublishEntityEvents publishes one entity-update batch. Batches for a group
// land on one stream in publish order, so per-group serialization holds.
func (p *RedisProducer) PublishEntityEvents(ctx context.Context, batch *domain.EventBatch) error {
	return p.publish(ctx, StreamIndexEvents, batch)
}

func (p *RedisProducer) publish(ctx context.Context, stream string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job for %s: %w", stream, err)
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": data},
	}).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}
