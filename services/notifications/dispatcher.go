package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/signalops/internal/observability"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"github.com/upb/signalops/services"
	"go.uber.org/zap"
)

// Dispatcher routes a notification to the tenant's configured channel provider
type Dispatcher struct {
	configs  repositories.NotificationConfigRepository
	registry *Registry
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(configs repositories.NotificationConfigRepository, registry *Registry, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		configs:  configs,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// Dispatch sends payload through the tenant's active config for channel.
// A destination in the config overrides the payload's. Provider errors are
// returned unchanged; retrying is the queue's job.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID uuid.UUID, channel models.Channel, payload Payload) error {
	config, err := d.configs.GetActive(ctx, tenantID, channel)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.NewNotFoundError(fmt.Sprintf("active notification config for %s", channel), err)
		}
		return services.WrapInternal("failed to load notification config", err)
	}

	provider, err := d.registry.Get(string(channel))
	if err != nil {
		return services.NewNotFoundError(fmt.Sprintf("provider for channel %s", channel), err)
	}

	if dest := config.Destination(); dest != "" {
		payload.Destination = dest
	}
	if payload.Destination == "" {
		return services.NewValidationError(fmt.Sprintf("no destination configured for channel %s", channel))
	}

	if err := provider.Send(ctx, payload); err != nil {
		d.metrics.NotificationSent(string(channel), observability.OutcomeFailure)
		// permanent failures will fail again on every retry, so they log louder
		level := zap.ErrorLevel
		if IsRetryable(err) {
			level = zap.WarnLevel
		}
		d.logger.Log(level, "failed to send notification",
			zap.String("tenant_id", tenantID.String()),
			zap.String("channel", string(channel)),
			zap.Bool("retryable", IsRetryable(err)),
			zap.Error(err),
		)
		return err
	}

	d.metrics.NotificationSent(string(channel), observability.OutcomeSuccess)
	d.logger.Debug("notification sent",
		zap.String("tenant_id", tenantID.String()),
		zap.String("channel", string(channel)),
	)
	return nil
}
