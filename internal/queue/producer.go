package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Producer publishes jobs to the event stream
type Producer interface {
	Enqueue(ctx context.Context, payload JobPayload) (string, error)
}

// RedisProducer appends jobs to a Redis stream
type RedisProducer struct {
	client StreamClient
	stream string
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisProducer creates a producer for stream
func NewRedisProducer(client StreamClient, stream string, logger *zap.Logger) *RedisProducer {
	return &RedisProducer{
		client: client,
		stream: stream,
		logger: logger,
		now:    time.Now,
	}
}

// Enqueue publishes a first-attempt job and returns its job id
func (p *RedisProducer) Enqueue(ctx context.Context, payload JobPayload) (string, error) {
	job := Job{
		TenantID:   payload.TenantID,
		EventID:    payload.EventID,
		Type:       payload.Type,
		Attempt:    1,
		EnqueuedAt: p.now().UTC(),
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: job.values(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue event: %w", err)
	}

	p.logger.Debug("job enqueued",
		zap.String("job_id", id),
		zap.String("tenant_id", payload.TenantID.String()),
		zap.String("event_id", payload.EventID.String()),
		zap.String("type", payload.Type),
	)
	return id, nil
}
