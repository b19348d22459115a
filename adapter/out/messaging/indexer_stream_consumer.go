package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// JobHandler processes jobs from streams.
type JobHandler interface {
	Handle(ctx context.Context, stream string, data []byte) error
}

// Consumer consumes messages from Redis Streams. Events are read in stream
// order per group; stuck pending messages are reclaimed and retried, and
// messages over the retry budget land in a dead-letter stream.
type Consumer struct {
	client   *redis.Client
	group    string
	consumer string
	streams  []string
	handler  JobHandler
	log      zerolog.Logger

	pendingCheckInterval time.Duration
	pendingIdleTime      time.Duration
	maxRetries           int
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Group    string
	Consumer string
	Streams  []string
	Handler  JobHandler
	Logger   zerolog.Logger

	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
}

// NewConsumer creates a new Consumer.
func NewConsumer(client *redis.Client, cfg *ConsumerConfig) *Consumer {
	pendingCheckInterval := cfg.PendingCheckInterval
	if pendingCheckInterval == 0 {
		pendingCheckInterval = 30 * time.Second
	}
	pendingIdleTime := cfg.PendingIdleTime
	if pendingIdleTime == 0 {
		pendingIdleTime = 2 * time.Minute
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &Consumer{
		client:               client,
		group:                cfg.Group,
		consumer:             cfg.Consumer,
		streams:              cfg.Streams,
		handler:              cfg.Handler,
		log:                  cfg.Logger.With().Str("component", "stream_consumer").Logger(),
		pendingCheckInterval: pendingCheckInterval,
		pendingIdleTime:      pendingIdleTime,
		maxRetries:           maxRetries,
	}
}

// Run starts consuming messages until ctx ends.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Str("group", c.group).
		Str("consumer", c.consumer).
		Strs("streams", c.streams).
		Msg("starting consumer")

	for _, stream := range c.streams {
		c.createConsumerGroup(ctx, stream)
	}

	go c.processPendingMessages(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.readMessages(ctx)
		if err != nil {
			if err == redis.Nil {
				continue // No messages
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Msg("error reading from streams")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				if err := c.processMessage(ctx, stream.Stream, msg); err != nil {
					// Not acked; the pending reprocessor retries it.
					c.log.Error().
						Err(err).
						Str("stream", stream.Stream).
						Str("id", msg.ID).
						Msg("error processing message")
					continue
				}

				if err := c.client.XAck(ctx, stream.Stream, c.group, msg.ID).Err(); err != nil {
					c.log.Error().
						Err(err).
						Str("stream", stream.Stream).
						Str("id", msg.ID).
						Msg("error acknowledging message")
				}
			}
		}
	}
}

// processPendingMessages periodically reclaims and retries stuck messages.
func (c *Consumer) processPendingMessages(ctx context.Context) {
	ticker := time.NewTicker(c.pendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.claimAndProcessPending(ctx)
		}
	}
}

func (c *Consumer) claimAndProcessPending(ctx context.Context) {
	for _, stream := range c.streams {
		pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  c.group,
			Start:  "-",
			End:    "+",
			Count:  100,
		}).Result()
		if err != nil {
			if err != redis.Nil {
				c.log.Error().Err(err).Str("stream", stream).Msg("error getting pending messages")
			}
			continue
		}

		for _, p := range pending {
			if p.Idle < c.pendingIdleTime {
				continue
			}

			if int(p.RetryCount) >= c.maxRetries {
				c.log.Warn().
					Str("stream", stream).
					Str("id", p.ID).
					Int64("retries", p.RetryCount).
					Msg("message exceeded max retries, moving to DLQ")

				if err := c.moveToDeadLetterQueue(ctx, stream, p.ID); err != nil {
					c.log.Error().Err(err).Str("id", p.ID).Msg("error moving message to DLQ")
				}
				c.client.XAck(ctx, stream, c.group, p.ID)
				continue
			}

			claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
				Stream:   stream,
				Group:    c.group,
				Consumer: c.consumer,
				MinIdle:  c.pendingIdleTime,
				Messages: []string{p.ID},
			}).Result()
			if err != nil {
				c.log.Error().Err(err).Str("id", p.ID).Msg("error claiming message")
				continue
			}

			for _, msg := range claimed {
				if err := c.processMessage(ctx, stream, msg); err != nil {
					c.log.Error().
						Err(err).
						Str("stream", stream).
						Str("id", msg.ID).
						Msg("error reprocessing pending message")
					continue
				}

				if err := c.client.XAck(ctx, stream, c.group, msg.ID).Err(); err != nil {
					c.log.Error().Err(err).Str("id", msg.ID).Msg("error acknowledging reprocessed message")
				}
			}
		}
	}
}

func (c *Consumer) createConsumerGroup(ctx context.Context, stream string) {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		c.log.Warn().Err(err).Str("stream", stream).Msg("error creating consumer group")
	}
}

func (c *Consumer) readMessages(ctx context.Context) ([]redis.XStream, error) {
	if len(c.streams) == 0 {
		return nil, redis.Nil
	}

	args := make([]string, len(c.streams)*2)
	for i, stream := range c.streams {
		args[i] = stream
		args[len(c.streams)+i] = ">"
	}

	return c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  args,
		Count:    10,
		Block:    5 * time.Second,
	}).Result()
}

func (c *Consumer) processMessage(ctx context.Context, stream string, msg redis.XMessage) error {
	data, ok := msg.Values["data"]
	if !ok {
		return fmt.Errorf("invalid message format: missing data field")
	}

	dataStr, ok := data.(string)
	if !ok {
		return fmt.Errorf("invalid message format: data is not a string")
	}

	return c.handler.Handle(ctx, stream, []byte(dataStr))
}

// moveToDeadLetterQueue moves a failed message to dlq:{stream}.
func (c *Consumer) moveToDeadLetterQueue(ctx context.Context, stream string, msgID string) error {
	messages, err := c.client.XRange(ctx, stream, msgID, msgID).Result()
	if err != nil {
		return fmt.Errorf("failed to read message for DLQ: %w", err)
	}
	if len(messages) == 0 {
		return fmt.Errorf("message %s not found in stream %s", msgID, stream)
	}

	dlqData := map[string]interface{}{
		"original_stream": stream,
		"original_id":     msgID,
		"failed_at":       time.Now().UTC().Format(time.RFC3339),
		"consumer":        c.consumer,
		"group":           c.group,
	}
	for k, v := range messages[0].Values {
		dlqData["original_"+k] = v
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: "dlq:" + stream,
		Values: dlqData,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add message to DLQ: %w", err)
	}

	return nil
}
