package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/signalops/internal/queue"
	"github.com/upb/signalops/repositories"
	"github.com/upb/signalops/services"
	"github.com/upb/signalops/services/notifications"
	"go.uber.org/zap"
)

// EventProcessor evaluates rules for a queued event and executes the fired actions
type EventProcessor struct {
	events     repositories.EventRepository
	tenants    repositories.TenantRepository
	rules      RuleEvaluator
	dispatcher Dispatcher
	billing    UsageRecorder
	logger     *zap.Logger
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(
	events repositories.EventRepository,
	tenants repositories.TenantRepository,
	rules RuleEvaluator,
	dispatcher Dispatcher,
	billing UsageRecorder,
	logger *zap.Logger,
) *EventProcessor {
	return &EventProcessor{
		events:     events,
		tenants:    tenants,
		rules:      rules,
		dispatcher: dispatcher,
		billing:    billing,
		logger:     logger,
	}
}

// Process runs every fired action in order. The first failing action aborts
// the job; the queue retries it as a whole, so earlier actions may repeat.
func (p *EventProcessor) Process(ctx context.Context, job queue.Job) error {
	event, err := p.events.GetByTenantAndID(ctx, job.TenantID, job.EventID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.NewNotFoundError(fmt.Sprintf("event %s", job.EventID), err)
		}
		return services.WrapInternal("failed to load event", err)
	}

	if _, err := p.tenants.GetByID(ctx, job.TenantID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.NewNotFoundError(fmt.Sprintf("tenant %s", job.TenantID), err)
		}
		return services.WrapInternal("failed to load tenant", err)
	}

	fired, err := p.rules.Evaluate(ctx, event)
	if err != nil {
		return err
	}

	p.logger.Debug("rules evaluated",
		zap.String("job_id", job.ID),
		zap.String("event_id", event.ID.String()),
		zap.Int("fired_actions", len(fired)),
	)

	for i, action := range fired {
		payload := notifications.Payload{
			Subject:     action.Subject,
			Message:     action.Message,
			Destination: action.Destination,
			Context: map[string]interface{}{
				"event": event,
				"rule": map[string]interface{}{
					"id":      action.RuleID,
					"name":    action.RuleName,
					"version": action.RuleVersion,
				},
			},
		}

		if err := p.dispatcher.Dispatch(ctx, job.TenantID, action.Channel, payload); err != nil {
			return fmt.Errorf("action %d (%s via %s): %w", i+1, action.RuleName, action.Channel, err)
		}
		if err := p.billing.RecordNotificationSent(ctx, job.TenantID); err != nil {
			return fmt.Errorf("recording notification for action %d: %w", i+1, err)
		}
	}

	return nil
}
