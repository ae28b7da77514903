package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"go.uber.org/zap"
)

// IdempotencyRepository implements the repositories.IdempotencyRepository interface
type IdempotencyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewIdempotencyRepository creates a new idempotency repository
func NewIdempotencyRepository(db *DB, logger *zap.Logger) repositories.IdempotencyRepository {
	return &IdempotencyRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the record for a tenant and key
func (r *IdempotencyRepository) Get(ctx context.Context, tenantID uuid.UUID, key string) (*models.IdempotencyRecord, error) {
	query := `
		SELECT id, tenant_id, idempotency_key, event_id, created_at
		FROM idempotency_keys
		WHERE tenant_id = $1 AND idempotency_key = $2
	`

	executor := GetExecutor(ctx, r.db)
	record := &models.IdempotencyRecord{}

	err := executor.QueryRowContext(ctx, query, tenantID, key).Scan(
		&record.ID,
		&record.TenantID,
		&record.IdempotencyKey,
		&record.EventID,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err, "failed to get idempotency key")
	}

	return record, nil
}

// Create inserts a record. A key whose event was deleted is claimed again by
// pointing it at the new event. A key still bound to an event is left in
// place and yields ErrDuplicate.
func (r *IdempotencyRepository) Create(ctx context.Context, record *models.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_keys (id, tenant_id, idempotency_key, event_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, idempotency_key)
		DO UPDATE SET event_id = EXCLUDED.event_id
		WHERE idempotency_keys.event_id IS NULL
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		record.ID,
		record.TenantID,
		record.IdempotencyKey,
		record.EventID,
		record.CreatedAt,
	)
	if err != nil {
		return translateError(err, "failed to create idempotency key")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		r.logger.Debug("idempotency key already claimed",
			zap.String("tenant_id", record.TenantID.String()),
			zap.String("key", record.IdempotencyKey),
		)
		return repositories.ErrDuplicate
	}

	return nil
}
