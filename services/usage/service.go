package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/signalops/internal/observability"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"github.com/upb/signalops/services"
	"go.uber.org/zap"
)

// QuotaCheckResult describes a tenant's position against its monthly limits
type QuotaCheckResult struct {
	Period           models.Period
	Used             int64
	SoftLimit        int64
	HardLimit        int64
	SoftLimitReached bool
}

// Service tracks per-tenant, per-month usage counters and enforces quotas
type Service struct {
	usage   repositories.UsageRepository
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new usage service
func NewService(usage repositories.UsageRepository, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		usage:   usage,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// CurrentPeriod returns the calendar month the service is accounting against
func (s *Service) CurrentPeriod() models.Period {
	return models.CurrentPeriod(s.now())
}

// CheckQuota compares the current-period event count with the tenant limits.
// At or above the hard limit it returns a quota error; at or above the soft
// limit it flags the result and emits a warning. It must run in the same
// transaction as RecordEventIngested: the usage row stays locked until commit
// so concurrent ingestions cannot both pass at limit minus one.
func (s *Service) CheckQuota(ctx context.Context, tenant *models.Tenant) (*QuotaCheckResult, error) {
	period := s.CurrentPeriod()

	used, err := s.eventsIngested(ctx, tenant.ID, period)
	if err != nil {
		return nil, err
	}

	result := &QuotaCheckResult{
		Period:    period,
		Used:      used,
		SoftLimit: tenant.MonthlySoftLimit,
		HardLimit: tenant.MonthlyHardLimit,
	}

	if used >= tenant.MonthlyHardLimit {
		s.logger.Info("hard limit reached",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("slug", tenant.Slug),
			zap.Int64("used", used),
			zap.Int64("hard_limit", tenant.MonthlyHardLimit),
		)
		return result, services.NewQuotaExceededError(used, tenant.MonthlyHardLimit)
	}

	if used >= tenant.MonthlySoftLimit {
		result.SoftLimitReached = true
		s.metrics.SoftLimitReached()
		s.logger.Warn("soft limit reached",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("slug", tenant.Slug),
			zap.Int64("used", used),
			zap.Int64("soft_limit", tenant.MonthlySoftLimit),
		)
	}

	return result, nil
}

// RecordEventIngested atomically increments the tenant's events_ingested counter
func (s *Service) RecordEventIngested(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.usage.IncrementEvents(ctx, tenantID, s.CurrentPeriod()); err != nil {
		return services.WrapInternal("failed to record ingested event", err)
	}
	return nil
}

// Usage returns the current-period counters, zero-valued when no activity exists yet
func (s *Service) Usage(ctx context.Context, tenantID uuid.UUID) (*models.UsageRecord, error) {
	period := s.CurrentPeriod()

	record, err := s.usage.GetForPeriod(ctx, tenantID, period)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return &models.UsageRecord{
				TenantID:    tenantID,
				PeriodStart: period.Start,
				PeriodEnd:   period.End,
			}, nil
		}
		return nil, services.WrapInternal("failed to load usage", err)
	}
	return record, nil
}

func (s *Service) eventsIngested(ctx context.Context, tenantID uuid.UUID, period models.Period) (int64, error) {
	record, err := s.usage.LockForPeriod(ctx, tenantID, period)
	if err != nil {
		return 0, services.WrapInternal(fmt.Sprintf("failed to load usage for period %s", period.Key()), err)
	}
	return record.EventsIngested, nil
}
