package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"go.uber.org/zap"
)

// UsageRepository implements the repositories.UsageRepository interface
type UsageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB, logger *zap.Logger) repositories.UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger,
	}
}

// GetForPeriod retrieves the usage counters for a tenant and period
func (r *UsageRepository) GetForPeriod(ctx context.Context, tenantID uuid.UUID, period models.Period) (*models.UsageRecord, error) {
	query := `
		SELECT id, tenant_id, period_start, period_end, events_ingested, notifications_sent, created_at, updated_at
		FROM usage_records
		WHERE tenant_id = $1 AND period_start = $2 AND period_end = $3
	`

	executor := GetExecutor(ctx, r.db)
	record := &models.UsageRecord{}

	err := executor.QueryRowContext(ctx, query, tenantID, period.Start, period.End).Scan(
		&record.ID,
		&record.TenantID,
		&record.PeriodStart,
		&record.PeriodEnd,
		&record.EventsIngested,
		&record.NotificationsSent,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err, "failed to get usage record")
	}

	return record, nil
}

// LockForPeriod upserts the period row and locks it. The no-op DO UPDATE takes
// the row lock, so concurrent quota checks for one tenant run one at a time and
// each sees the counter committed by the previous one.
func (r *UsageRepository) LockForPeriod(ctx context.Context, tenantID uuid.UUID, period models.Period) (*models.UsageRecord, error) {
	query := `
		INSERT INTO usage_records (id, tenant_id, period_start, period_end, events_ingested, notifications_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, NOW(), NOW())
		ON CONFLICT (tenant_id, period_start, period_end)
		DO UPDATE SET updated_at = usage_records.updated_at
		RETURNING id, tenant_id, period_start, period_end, events_ingested, notifications_sent, created_at, updated_at
	`

	executor := GetExecutor(ctx, r.db)
	record := &models.UsageRecord{}

	err := executor.QueryRowContext(ctx, query, uuid.New(), tenantID, period.Start, period.End).Scan(
		&record.ID,
		&record.TenantID,
		&record.PeriodStart,
		&record.PeriodEnd,
		&record.EventsIngested,
		&record.NotificationsSent,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err, "failed to lock usage record")
	}

	return record, nil
}

// IncrementEvents atomically increments events_ingested for the period
func (r *UsageRepository) IncrementEvents(ctx context.Context, tenantID uuid.UUID, period models.Period) error {
	query := `
		INSERT INTO usage_records (id, tenant_id, period_start, period_end, events_ingested, notifications_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, 0, NOW(), NOW())
		ON CONFLICT (tenant_id, period_start, period_end)
		DO UPDATE SET
			events_ingested = usage_records.events_ingested + 1,
			updated_at = NOW()
	`
	return r.increment(ctx, query, "events_ingested", tenantID, period)
}

// IncrementNotifications atomically increments notifications_sent for the period
func (r *UsageRepository) IncrementNotifications(ctx context.Context, tenantID uuid.UUID, period models.Period) error {
	query := `
		INSERT INTO usage_records (id, tenant_id, period_start, period_end, events_ingested, notifications_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 1, NOW(), NOW())
		ON CONFLICT (tenant_id, period_start, period_end)
		DO UPDATE SET
			notifications_sent = usage_records.notifications_sent + 1,
			updated_at = NOW()
	`
	return r.increment(ctx, query, "notifications_sent", tenantID, period)
}

func (r *UsageRepository) increment(ctx context.Context, query, counter string, tenantID uuid.UUID, period models.Period) error {
	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query, uuid.New(), tenantID, period.Start, period.End)
	if err != nil {
		return translateError(err, "failed to increment "+counter)
	}

	r.logger.Debug("usage incremented",
		zap.String("tenant_id", tenantID.String()),
		zap.String("counter", counter),
		zap.String("period", period.Key()),
	)
	return nil
}
