package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"github.com/upb/signalops/services"
	"go.uber.org/zap"
)

// Service accounts for notifications sent on behalf of tenants
type Service struct {
	usage  repositories.UsageRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new billing service
func NewService(usage repositories.UsageRepository, logger *zap.Logger) *Service {
	return &Service{
		usage:  usage,
		logger: logger,
		now:    time.Now,
	}
}

// RecordNotificationSent atomically increments notifications_sent for the
// tenant's current period, creating the period row if absent.
func (s *Service) RecordNotificationSent(ctx context.Context, tenantID uuid.UUID) error {
	period := models.CurrentPeriod(s.now())

	if err := s.usage.IncrementNotifications(ctx, tenantID, period); err != nil {
		s.logger.Error("failed to record notification",
			zap.String("tenant_id", tenantID.String()),
			zap.String("period", period.Key()),
			zap.Error(err),
		)
		return services.WrapInternal("failed to record notification", err)
	}
	return nil
}
