// Package outbox publishes events whose post-commit enqueue did not happen.
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/upb/signalops/internal/observability"
	"github.com/upb/signalops/repositories"
	"github.com/upb/signalops/services"
	"github.com/upb/signalops/services/ingestion"
	"go.uber.org/zap"
)

// Config controls relay polling
type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// Relay drains pending outbox entries into the event queue
type Relay struct {
	txMgr      repositories.TransactionManager
	outbox     repositories.OutboxRepository
	reenqueuer ingestion.Reenqueuer
	cfg        Config
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRelay creates a new outbox relay
func NewRelay(
	txMgr repositories.TransactionManager,
	outbox repositories.OutboxRepository,
	reenqueuer ingestion.Reenqueuer,
	cfg Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{
		txMgr:      txMgr,
		outbox:     outbox,
		reenqueuer: reenqueuer,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Run polls until ctx is cancelled or Stop is called
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", zap.Duration("interval", r.cfg.PollInterval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				r.logger.Error("outbox relay pass failed", zap.Error(err))
			}
		}
	}
}

// Stop ends Run
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// RelayOnce locks one batch of pending entries and enqueues them.
// It returns the number of entries dispatched.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	return services.WithTransactionResult(ctx, r.txMgr, func(ctx context.Context, _ repositories.Transaction) (int, error) {
		entries, err := r.outbox.ListPending(ctx, r.cfg.BatchSize)
		if err != nil {
			return 0, services.WrapInternal("failed to list outbox entries", err)
		}

		dispatched := 0
		for _, entry := range entries {
			jobID, err := r.reenqueuer.ReenqueueEvent(ctx, entry.TenantID, entry.EventID)
			if err != nil {
				r.metrics.OutboxRelayed(observability.OutcomeFailure)
				r.logger.Warn("outbox entry not relayed",
					zap.String("event_id", entry.EventID.String()),
					zap.Int("attempts", entry.Attempts+1),
					zap.Error(err),
				)
				if err := r.outbox.RecordFailure(ctx, entry.ID, err.Error()); err != nil {
					return dispatched, services.WrapInternal("failed to record outbox failure", err)
				}
				continue
			}

			if err := r.outbox.MarkDispatched(ctx, entry.EventID, r.now().UTC()); err != nil {
				return dispatched, services.WrapInternal("failed to mark outbox entry dispatched", err)
			}
			r.metrics.OutboxRelayed(observability.OutcomeSuccess)
			r.logger.Info("outbox entry relayed",
				zap.String("event_id", entry.EventID.String()),
				zap.String("job_id", jobID),
			)
			dispatched++
		}
		return dispatched, nil
	})
}
