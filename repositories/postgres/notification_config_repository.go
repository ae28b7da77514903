package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"go.uber.org/zap"
)

// NotificationConfigRepository implements the repositories.NotificationConfigRepository interface
type NotificationConfigRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewNotificationConfigRepository creates a new notification config repository
func NewNotificationConfigRepository(db *DB, logger *zap.Logger) repositories.NotificationConfigRepository {
	return &NotificationConfigRepository{
		db:     db,
		logger: logger,
	}
}

// GetActive retrieves the active config for a tenant and channel
func (r *NotificationConfigRepository) GetActive(ctx context.Context, tenantID uuid.UUID, channel models.Channel) (*models.NotificationConfig, error) {
	query := `
		SELECT id, tenant_id, channel, status, config, created_at, updated_at
		FROM notification_configs
		WHERE tenant_id = $1 AND channel = $2 AND status = 'active'
		ORDER BY updated_at DESC
		LIMIT 1
	`

	executor := GetExecutor(ctx, r.db)
	cfg := &models.NotificationConfig{}
	var raw []byte

	err := executor.QueryRowContext(ctx, query, tenantID, channel).Scan(
		&cfg.ID,
		&cfg.TenantID,
		&cfg.Channel,
		&cfg.Status,
		&raw,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err, "failed to get notification config")
	}

	if cfg.Config, err = unmarshalJSONMap(raw); err != nil {
		return nil, err
	}
	return cfg, nil
}
