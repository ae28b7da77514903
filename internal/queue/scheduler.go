package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SchedulerConfig configures the delayed retry promoter
type SchedulerConfig struct {
	Stream     string
	DelayedSet string
	Interval   time.Duration
	BatchSize  int64
}

// Scheduler moves retries whose backoff has elapsed back onto the stream
type Scheduler struct {
	client StreamClient
	cfg    SchedulerConfig
	logger *zap.Logger
	now    func() time.Time

	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewScheduler creates a scheduler
func NewScheduler(client StreamClient, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.DelayedSet == "" {
		cfg.DelayedSet = cfg.Stream + ":delayed"
	}
	return &Scheduler{
		client:    client,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "queue.scheduler")),
		now:       time.Now,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run promotes due jobs on every tick. Blocks until ctx is done or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("interval", s.cfg.Interval), zap.String("delayed_set", s.cfg.DelayedSet))

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			s.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			if _, err := s.PromoteDue(ctx); err != nil {
				s.logger.Error("promote cycle error", zap.Error(err))
			}
		}
	}
}

// Stop signals the scheduler to stop and waits for it. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.stoppedCh
}

// PromoteDue re-adds every delayed job whose ready time has passed and
// returns how many were promoted. ZREM acts as the claim, so concurrent
// schedulers never promote the same entry twice.
func (s *Scheduler) PromoteDue(ctx context.Context) (int, error) {
	members, err := s.client.ZRangeByScore(ctx, s.cfg.DelayedSet, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(s.now().UnixMilli(), 10),
		Count: s.cfg.BatchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore: %w", err)
	}

	promoted := 0
	for _, member := range members {
		removed, err := s.client.ZRem(ctx, s.cfg.DelayedSet, member).Result()
		if err != nil {
			return promoted, fmt.Errorf("zrem: %w", err)
		}
		if removed == 0 {
			continue
		}

		job, err := decodeDelayed(member)
		if err != nil {
			s.logger.Error("dropping undecodable delayed entry", zap.String("member", member), zap.Error(err))
			continue
		}

		if err := s.client.XAdd(ctx, &redis.XAddArgs{Stream: s.cfg.Stream, Values: job.values()}).Err(); err != nil {
			// Put it back so the next cycle retries the promotion.
			if zErr := s.client.ZAdd(ctx, s.cfg.DelayedSet, redis.Z{Score: float64(s.now().UnixMilli()), Member: member}).Err(); zErr != nil {
				s.logger.Error("failed to restore delayed job", zap.String("job_id", job.ID), zap.Error(zErr))
			}
			return promoted, fmt.Errorf("xadd promote: %w", err)
		}

		promoted++
		s.logger.Debug("delayed job promoted", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	}

	return promoted, nil
}
