package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/signalops/internal/queue"
	"github.com/upb/signalops/internal/worker"
	"go.uber.org/zap"
)

// Pipeline is the consumer side of the queue: worker loops, the delayed
// retry scheduler and the stale delivery reclaimer.
type Pipeline struct {
	Consumer  *queue.RedisConsumer
	Worker    *worker.Worker
	Scheduler *queue.Scheduler
	Reclaimer *worker.Reclaimer

	logger *zap.Logger
}

// NewPipeline joins the consumer group and wires the processing chain
func (d *Dependencies) NewPipeline(ctx context.Context) (*Pipeline, error) {
	qc := d.Config.Queue

	consumer, err := queue.NewRedisConsumer(ctx, d.Redis, queue.ConsumerConfig{
		Stream:      qc.EventStream,
		Group:       qc.ConsumerGroup,
		Consumer:    qc.ConsumerName,
		DLQStream:   qc.DeadLetterStream,
		DelayedSet:  qc.DelayedSet(),
		BatchSize:   qc.BatchSize,
		Block:       qc.Block,
		MaxAttempts: qc.MaxAttempts,
	}, queue.ExponentialBackoff(qc.BackoffBase), d.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	processor := worker.NewEventProcessor(d.Repos.Events, d.Repos.Tenants, d.Rules, d.Dispatcher, d.Billing, d.Logger)
	w := worker.New(consumer, processor, worker.Config{
		Concurrency: qc.Concurrency,
		JobTimeout:  qc.JobTimeout,
	}, d.Metrics, d.Logger)

	scheduler := queue.NewScheduler(d.Redis, queue.SchedulerConfig{
		Stream:     qc.EventStream,
		DelayedSet: qc.DelayedSet(),
		Interval:   qc.SchedulerInterval,
	}, d.Logger)

	reclaimer := worker.NewReclaimer(consumer, w, worker.ReclaimerConfig{
		MinIdle:   qc.ReclaimMinIdle,
		Interval:  qc.ReclaimInterval,
		BatchSize: qc.BatchSize,
	}, d.Logger)

	d.Logger.Info("consumer pipeline ready",
		zap.String("stream", qc.EventStream),
		zap.String("group", qc.ConsumerGroup),
		zap.String("consumer", qc.ConsumerName),
		zap.Int("max_attempts", qc.MaxAttempts),
		zap.Duration("backoff_base", qc.BackoffBase),
	)

	return &Pipeline{
		Consumer:  consumer,
		Worker:    w,
		Scheduler: scheduler,
		Reclaimer: reclaimer,
		logger:    d.Logger,
	}, nil
}

// Run starts the scheduler and reclaimer in the background and blocks on the
// worker loops. It returns once all three have exited.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.Scheduler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		p.Reclaimer.Run(ctx)
	}()

	err := p.Worker.Run(ctx)
	wg.Wait()
	return err
}

// Stop lets in-flight jobs finish, then stops the background loops.
// It gives up waiting after timeout.
func (p *Pipeline) Stop(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		p.Worker.Stop()
		p.Reclaimer.Stop()
		p.Scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("consumer pipeline stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("consumer pipeline did not stop within %s", timeout)
	}
}
