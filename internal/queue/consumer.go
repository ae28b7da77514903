package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConsumerConfig configures a consumer group reader
type ConsumerConfig struct {
	Stream      string        // Redis stream name
	Group       string        // Redis consumer group name
	Consumer    string        // Redis consumer name
	DLQStream   string        // Dead letter stream for exhausted jobs
	DelayedSet  string        // Sorted set holding jobs waiting for their retry time
	BatchSize   int64         // Number of messages to read per call
	Block       time.Duration // How long to block waiting for new messages
	MaxAttempts int           // Attempts before a job is dead-lettered
}

// RedisConsumer reads jobs from a stream through a consumer group
type RedisConsumer struct {
	client  StreamClient
	cfg     ConsumerConfig
	backoff BackoffFunc
	logger  *zap.Logger
	now     func() time.Time
}

// NewRedisConsumer creates a consumer and ensures the group exists
func NewRedisConsumer(ctx context.Context, client StreamClient, cfg ConsumerConfig, backoff BackoffFunc, logger *zap.Logger) (*RedisConsumer, error) {
	if backoff == nil {
		backoff = Backoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.DelayedSet == "" {
		cfg.DelayedSet = cfg.Stream + ":delayed"
	}

	c := &RedisConsumer{
		client:  client,
		cfg:     cfg,
		backoff: backoff,
		logger:  logger.With(zap.String("stream", cfg.Stream), zap.String("group", cfg.Group)),
		now:     time.Now,
	}

	if err := c.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ensureGroup creates the group from the start of the stream so that entries
// written before the first worker started are still delivered.
func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

// MaxAttempts returns the attempt cap
func (c *RedisConsumer) MaxAttempts() int {
	return c.cfg.MaxAttempts
}

// Read returns new jobs for this consumer. Malformed entries are dead-lettered.
func (c *RedisConsumer) Read(ctx context.Context) ([]Job, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		// ">" delivers entries never delivered to this group; stale pending
		// entries are picked up by Claim.
		Streams: []string{c.cfg.Stream, ">"},
		Count:   c.cfg.BatchSize,
		Block:   c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Job{}, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var jobs []Job
	for _, stream := range streams {
		jobs = append(jobs, c.parseMessages(ctx, stream.Messages)...)
	}

	if len(jobs) > 0 {
		c.logger.Debug("read jobs from stream", zap.Int("count", len(jobs)), zap.String("consumer", c.cfg.Consumer))
	}
	return jobs, nil
}

// Claim takes ownership of entries pending longer than minIdle on other
// consumers, e.g. after a worker crashed between read and ack.
func (c *RedisConsumer) Claim(ctx context.Context, minIdle time.Duration, count int64) ([]Job, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	deliveries := make(map[string]int64, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
		deliveries[p.ID] = p.RetryCount
	}

	messages, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim: %w", err)
	}

	jobs := c.parseMessages(ctx, messages)
	for i := range jobs {
		// Each earlier delivery that never acked counts as a failed attempt,
		// so a job that crashes its consumer still reaches the attempt cap.
		if n := deliveries[jobs[i].MessageID]; n > 1 {
			jobs[i].Attempt += int(n - 1)
		}
		if jobs[i].LastError == "" {
			jobs[i].LastError = "consumer did not acknowledge delivery"
		}
	}
	if len(jobs) > 0 {
		c.logger.Info("claimed stale jobs", zap.Int("count", len(jobs)))
	}
	return jobs, nil
}

// Ack acknowledges a delivery
func (c *RedisConsumer) Ack(ctx context.Context, job Job) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, job.MessageID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

// ScheduleRetry parks the job in the delayed set until its backoff elapses,
// then acknowledges the current delivery. Returns the delay applied.
func (c *RedisConsumer) ScheduleRetry(ctx context.Context, job Job, reason string) (time.Duration, error) {
	delay := c.backoff(job.Attempt)

	next := job
	next.Attempt = job.Attempt + 1
	next.LastError = reason
	next.MessageID = ""

	member, err := encodeDelayed(next)
	if err != nil {
		return 0, err
	}

	readyAt := c.now().Add(delay)
	if err := c.client.ZAdd(ctx, c.cfg.DelayedSet, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: member,
	}).Err(); err != nil {
		return 0, fmt.Errorf("zadd delayed (key=%s): %w", c.cfg.DelayedSet, err)
	}

	if err := c.Ack(ctx, job); err != nil {
		return 0, fmt.Errorf("acking job scheduled for retry: %w", err)
	}

	c.logger.Warn("job scheduled for retry",
		zap.String("job_id", job.ID),
		zap.String("event_id", job.EventID.String()),
		zap.Int("next_attempt", next.Attempt),
		zap.Duration("delay", delay),
		zap.String("reason", reason),
	)
	return delay, nil
}

// DeadLetter writes the job to the dead letter stream and acknowledges it.
// Dead-lettered jobs are never re-added to the main stream.
func (c *RedisConsumer) DeadLetter(ctx context.Context, job Job, reason string) error {
	values := job.values()
	values[fieldJobID] = job.ID
	values[fieldFailed] = reason

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}

	if err := c.Ack(ctx, job); err != nil {
		return fmt.Errorf("acking dead-lettered job: %w", err)
	}

	c.logger.Error("job moved to dead letter stream",
		zap.String("job_id", job.ID),
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("event_id", job.EventID.String()),
		zap.Int("attempts", job.Attempt),
		zap.String("failed_reason", reason),
		zap.String("dlq_stream", c.cfg.DLQStream),
	)
	return nil
}

func (c *RedisConsumer) parseMessages(ctx context.Context, messages []redis.XMessage) []Job {
	jobs := make([]Job, 0, len(messages))
	for _, msg := range messages {
		job, err := ParseJob(msg)
		if err != nil {
			c.logger.Error("failed to parse job, dead-lettering raw entry",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			c.deadLetterRaw(ctx, msg, err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func (c *RedisConsumer) deadLetterRaw(ctx context.Context, msg redis.XMessage, cause error) {
	values := make(map[string]any, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values[fieldJobID] = msg.ID
	values[fieldFailed] = "malformed job: " + cause.Error()

	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.cfg.DLQStream, Values: values}).Err(); err != nil {
		c.logger.Error("failed to dead-letter malformed entry", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.logger.Error("failed to ack malformed entry", zap.String("message_id", msg.ID), zap.Error(err))
	}
}
