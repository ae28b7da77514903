package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReclaimerConfig configures crashed-consumer recovery
type ReclaimerConfig struct {
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
}

// Reclaimer periodically claims deliveries left pending by a consumer that
// died between read and ack, and runs them through the worker's handling path.
type Reclaimer struct {
	claimer Claimer
	worker  *Worker
	cfg     ReclaimerConfig
	logger  *zap.Logger

	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewReclaimer creates a new reclaimer
func NewReclaimer(claimer Claimer, worker *Worker, cfg ReclaimerConfig, logger *zap.Logger) *Reclaimer {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Reclaimer{
		claimer:   claimer,
		worker:    worker,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "worker.reclaimer")),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run starts the reclaim loop. Blocks until ctx is done or Stop is called.
func (r *Reclaimer) Run(ctx context.Context) {
	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("reclaimer started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("min_idle", r.cfg.MinIdle),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			r.logger.Info("reclaimer stopping")
			return
		case <-ticker.C:
			if _, err := r.ReclaimOnce(ctx); err != nil {
				r.logger.Error("reclaim cycle error", zap.Error(err))
			}
		}
	}
}

// Stop signals the reclaimer to stop and waits for it
func (r *Reclaimer) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.stoppedCh
}

// ReclaimOnce claims one batch of stale deliveries and handles them
func (r *Reclaimer) ReclaimOnce(ctx context.Context) (int, error) {
	jobs, err := r.claimer.Claim(ctx, r.cfg.MinIdle, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	for _, job := range jobs {
		r.logger.Info("reclaiming stale job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		r.worker.HandleJob(ctx, job)
	}
	return len(jobs), nil
}
