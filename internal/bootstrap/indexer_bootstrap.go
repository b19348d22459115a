package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"indexer_server/adapter/in/worker"
	"indexer_server/adapter/out/messaging"
	"indexer_server/config"
	"indexer_server/core/domain"
	"indexer_server/core/port/out"
	"indexer_server/pkg/logger"
)

// Worker runs the stream consumer and the job pool.
type Worker struct {
	pool     *worker.Pool
	consumer *messaging.Consumer
	deps     *Dependencies
	cleanup  func()

	ctx    context.Context
	cancel context.CancelFunc
	zlog   zerolog.Logger
}

// NewWorker builds the worker-side dependency graph.
func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "mailindex-worker",
	})

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	deps, cleanup, err := NewDependencies(cfg, zlog)
	if err != nil {
		return nil, nil, err
	}

	indexProcessor := worker.NewIndexProcessor(deps.IndexService)
	handler := worker.NewHandler(indexProcessor)

	poolConfig := worker.DefaultPoolConfig()
	poolConfig.Workers = cfg.WorkerCount
	poolConfig.BatchSize = cfg.WorkerBatch
	poolConfig.WorkerChanSize = cfg.WorkerChanSize
	pool := worker.NewPool(handler, poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		pool:    pool,
		deps:    deps,
		cleanup: cleanup,
		ctx:     ctx,
		cancel:  cancel,
		zlog:    zlog,
	}

	w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
		Group:      "mailindex-workers",
		Consumer:   cfg.ConsumerID,
		Streams:    []string{messaging.StreamIndexBackfill, messaging.StreamIndexEvents},
		Handler:    &streamHandler{handler: handler, pool: pool},
		Logger:     zlog,
		MaxRetries: cfg.ConsumerMaxRetries,
	})

	return w, cleanup, nil
}

// Run starts the pool and blocks in the consumer loop until ctx ends.
func (w *Worker) Run() error {
	w.pool.Start()
	defer w.pool.Stop()

	return w.consumer.Run(w.ctx)
}

// Stop requests shutdown.
func (w *Worker) Stop() {
	w.cancel()
}

// =============================================================================
// Stream -> job routing
// =============================================================================

// streamHandler routes stream payloads. Backfills run on pool workers with
// their long job timeout, but the consumer waits for completion before it
// returns - the message is only acked once the walk finished, so a failed
// backfill stays pending and the reprocessor retries it. Event batches are
// applied synchronously to preserve per-group arrival order.
type streamHandler struct {
	handler *worker.Handler
	pool    *worker.Pool
}

func (h *streamHandler) Handle(ctx context.Context, stream string, data []byte) error {
	switch stream {
	case messaging.StreamIndexBackfill:
		var job out.BackfillJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("invalid backfill job: %w", err)
		}
		msg, err := worker.NewMessage(worker.JobIndexBackfill, worker.BackfillPayload{
			User:         job.User,
			EndTimestamp: job.EndTimestamp,
		})
		if err != nil {
			return err
		}
		return h.pool.SubmitWait(ctx, msg)

	case messaging.StreamIndexEvents:
		var batch domain.EventBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			return fmt.Errorf("invalid event batch: %w", err)
		}
		msg, err := worker.NewMessage(worker.JobIndexEvents, worker.EntityEventsPayload{Batch: batch})
		if err != nil {
			return err
		}
		return h.handler.Process(ctx, msg)

	default:
		logger.Warn("unknown stream: %s", stream)
		return nil
	}
}
