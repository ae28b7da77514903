package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/signalops/internal/observability"
	"github.com/upb/signalops/internal/queue"
	"go.uber.org/zap"
)

// Config controls worker concurrency and per-attempt limits
type Config struct {
	Concurrency int
	JobTimeout  time.Duration
	// ErrorBackoff is the pause after a failed read
	ErrorBackoff time.Duration
}

// Worker runs consumer loops that process jobs, then ack, retry or dead-letter them
type Worker struct {
	queue     JobQueue
	processor Processor
	cfg       Config
	metrics   *observability.Metrics
	logger    *zap.Logger

	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New creates a new worker
func New(q JobQueue, processor Processor, cfg Config, metrics *observability.Metrics, logger *zap.Logger) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		queue:     q,
		processor: processor,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "worker")),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run starts cfg.Concurrency consumer loops and blocks until they all exit
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	w.logger.Info("worker started", zap.Int("concurrency", w.cfg.Concurrency))

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(loop int) {
			defer wg.Done()
			w.loop(ctx, loop)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Stop signals all loops to finish their current batch and waits for them
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.stoppedCh
}

func (w *Worker) loop(ctx context.Context, id int) {
	logger := w.logger.With(zap.Int("loop", id))
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			logger.Info("worker loop stopping")
			return
		default:
		}

		jobs, err := w.queue.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("batch read error", zap.Error(err))
			select {
			case <-time.After(w.cfg.ErrorBackoff):
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			}
			continue
		}

		for _, job := range jobs {
			w.HandleJob(ctx, job)
		}
	}
}

// HandleJob processes one delivery and settles it. Exported so the reclaimer
// can reuse the same path for claimed jobs.
func (w *Worker) HandleJob(ctx context.Context, job queue.Job) {
	// In-flight jobs finish on shutdown; only the per-attempt timeout cuts them short.
	base := context.WithoutCancel(ctx)
	start := time.Now()

	logger := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("message_id", job.MessageID),
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("event_id", job.EventID.String()),
		zap.Int("attempt", job.Attempt),
	)

	if job.Attempt > w.queue.MaxAttempts() {
		w.deadLetter(base, logger, job, fmt.Sprintf("exceeded %d attempts: %s", w.queue.MaxAttempts(), job.LastError), start)
		return
	}

	logger.Debug("processing job")

	jobCtx, cancel := context.WithTimeout(base, w.cfg.JobTimeout)
	err := w.process(jobCtx, logger, job)
	cancel()

	if err == nil {
		if ackErr := w.queue.Ack(base, job); ackErr != nil {
			logger.Warn("failed to ack job, it will be redelivered", zap.Error(ackErr))
		}
		w.metrics.JobProcessed(observability.JobOutcomeSucceeded, time.Since(start).Seconds())
		logger.Info("job processed", zap.Duration("duration", time.Since(start)))
		return
	}

	logger.Warn("job attempt failed", zap.Error(err))

	if job.Attempt >= w.queue.MaxAttempts() {
		w.deadLetter(base, logger, job, err.Error(), start)
		return
	}

	if _, retryErr := w.queue.ScheduleRetry(base, job, err.Error()); retryErr != nil {
		logger.Error("failed to schedule retry, delivery stays pending", zap.Error(retryErr))
		return
	}
	w.metrics.JobProcessed(observability.JobOutcomeRetried, time.Since(start).Seconds())
}

func (w *Worker) deadLetter(ctx context.Context, logger *zap.Logger, job queue.Job, reason string, start time.Time) {
	if err := w.queue.DeadLetter(ctx, job, reason); err != nil {
		logger.Error("failed to dead-letter job, delivery stays pending", zap.Error(err))
		return
	}
	w.metrics.JobProcessed(observability.JobOutcomeDeadLettered, time.Since(start).Seconds())
}

// process runs the processor and gives up once ctx expires, even when the
// processor ignores ctx. An abandoned attempt keeps running in the background
// and its result is discarded.
func (w *Worker) process(ctx context.Context, logger *zap.Logger, job queue.Job) error {
	done := make(chan error, 1)
	go func() { done <- w.processSafe(ctx, logger, job) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		logger.Warn("abandoning job attempt after timeout", zap.Duration("timeout", w.cfg.JobTimeout))
		return fmt.Errorf("job timed out after %s: %w", w.cfg.JobTimeout, ctx.Err())
	}
}

func (w *Worker) processSafe(ctx context.Context, logger *zap.Logger, job queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic recovered in job processing", zap.Any("panic", r))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return w.processor.Process(ctx, job)
}
