package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"
)

var errWorkerPoolStopped = errors.New("worker pool not accepting jobs")

// =============================================================================
// go-pkgz/pool based worker pool
// =============================================================================

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers          int
	BatchSize        int
	WorkerChanSize   int
	JobTimeout       time.Duration
	JobTimeoutByType map[JobType]time.Duration
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        4,
		BatchSize:      10,
		WorkerChanSize: 100,
		JobTimeout:     60 * time.Second,
		JobTimeoutByType: map[JobType]time.Duration{
			// A cold 28-day backfill walks many pages; give it room. The
			// write gate serializes it against event batches either way.
			JobIndexBackfill: 30 * time.Minute,
			JobIndexEvents:   2 * time.Minute,
		},
	}
}

// Pool executes queued index jobs on go-pkgz/pool workers.
type Pool struct {
	handler *Handler
	config  *PoolConfig

	pool *pool.WorkerGroup[*Message]

	ctx    context.Context
	cancel context.CancelFunc

	metrics PoolMetrics
	log     zerolog.Logger

	started bool
	mu      sync.Mutex
}

// PoolMetrics holds pool metrics.
type PoolMetrics struct {
	JobsProcessed int64
	JobsFailed    int64
	QueueSize     int32
}

// messageWorker implements pool.Worker for Message processing.
type messageWorker struct {
	pool *Pool
}

// Do implements pool.Worker.
func (w *messageWorker) Do(ctx context.Context, msg *Message) error {
	return w.pool.processJob(ctx, msg)
}

// NewPool creates a new worker pool.
func NewPool(handler *Handler, config *PoolConfig, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler: handler,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		log:     log.With().Str("component", "worker_pool").Logger(),
	}
}

// Start starts the worker pool.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.pool = pool.New[*Message](p.config.Workers, &messageWorker{pool: p}).
		WithBatchSize(p.config.BatchSize).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()

	if err := p.pool.Go(p.ctx); err != nil {
		p.log.Error().Err(err).Msg("failed to start pool")
		return
	}

	p.started = true
	p.log.Info().
		Int("workers", p.config.Workers).
		Int("batch_size", p.config.BatchSize).
		Msg("worker pool started")
}

// Stop gracefully stops the worker pool.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()

	if err := p.pool.Close(closeCtx); err != nil {
		p.log.Warn().Err(err).Msg("error closing pool")
	}
	p.cancel()

	p.log.Info().
		Int64("processed", atomic.LoadInt64(&p.metrics.JobsProcessed)).
		Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
		Msg("worker pool stopped")
}

// Submit submits a job to the pool.
func (p *Pool) Submit(msg *Message) bool {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if !started {
		return false
	}

	p.pool.Submit(msg)
	atomic.AddInt32(&p.metrics.QueueSize, 1)
	return true
}

// SubmitWait submits a job and blocks until a worker finished it, returning
// the job's error. The stream consumer uses this so a message is acked only
// after the work completed, keeping failed jobs on the pending list for the
// at-least-once reprocessor.
func (p *Pool) SubmitWait(ctx context.Context, msg *Message) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if !started {
		return errWorkerPoolStopped
	}

	msg.done = make(chan error, 1)
	p.pool.Submit(msg)
	atomic.AddInt32(&p.metrics.QueueSize, 1)

	select {
	case err := <-msg.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Metrics returns a snapshot of pool metrics.
func (p *Pool) Metrics() PoolMetrics {
	return PoolMetrics{
		JobsProcessed: atomic.LoadInt64(&p.metrics.JobsProcessed),
		JobsFailed:    atomic.LoadInt64(&p.metrics.JobsFailed),
		QueueSize:     atomic.LoadInt32(&p.metrics.QueueSize),
	}
}

// getJobTimeout returns the timeout for a job type.
func (p *Pool) getJobTimeout(jobType JobType) time.Duration {
	if timeout, ok := p.config.JobTimeoutByType[jobType]; ok {
		return timeout
	}
	return p.config.JobTimeout
}

// processJob processes a single job with its type-specific timeout.
func (p *Pool) processJob(ctx context.Context, msg *Message) error {
	start := time.Now()
	defer atomic.AddInt32(&p.metrics.QueueSize, -1)

	jobCtx, cancel := context.WithTimeout(ctx, p.getJobTimeout(msg.Type))
	defer cancel()

	err := p.handler.Process(jobCtx, msg)
	if msg.done != nil {
		msg.done <- err
	}
	if err != nil {
		atomic.AddInt64(&p.metrics.JobsFailed, 1)
		p.log.Error().
			Err(err).
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			Dur("duration", time.Since(start)).
			Msg("job failed")
		return err
	}

	atomic.AddInt64(&p.metrics.JobsProcessed, 1)
	p.log.Debug().
		Str("job_id", msg.ID).
		Str("job_type", msg.Type).
		Dur("duration", time.Since(start)).
		Msg("job completed")
	return nil
}
