package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/signalops/internal/queue"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/services/billing"
	"github.com/upb/signalops/services/notifications"
	"github.com/upb/signalops/services/rules"
)

// JobQueue abstracts the consumer side of the event queue for testability.
type JobQueue interface {
	Read(ctx context.Context) ([]queue.Job, error)
	Ack(ctx context.Context, job queue.Job) error
	ScheduleRetry(ctx context.Context, job queue.Job, reason string) (time.Duration, error)
	DeadLetter(ctx context.Context, job queue.Job, reason string) error
	MaxAttempts() int
}

// Claimer takes over deliveries abandoned by crashed consumers.
type Claimer interface {
	Claim(ctx context.Context, minIdle time.Duration, count int64) ([]queue.Job, error)
}

// Processor handles a single job. A returned error fails the attempt.
type Processor interface {
	Process(ctx context.Context, job queue.Job) error
}

// RuleEvaluator produces the actions fired by an event.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, event *models.Event) ([]rules.FiredAction, error)
}

// Dispatcher delivers a notification through a tenant channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID uuid.UUID, channel models.Channel, payload notifications.Payload) error
}

// UsageRecorder accounts for sent notifications.
type UsageRecorder interface {
	RecordNotificationSent(ctx context.Context, tenantID uuid.UUID) error
}

var (
	_ JobQueue      = (*queue.RedisConsumer)(nil)
	_ Claimer       = (*queue.RedisConsumer)(nil)
	_ RuleEvaluator = (*rules.Engine)(nil)
	_ Dispatcher    = (*notifications.Dispatcher)(nil)
	_ UsageRecorder = (*billing.Service)(nil)
)
