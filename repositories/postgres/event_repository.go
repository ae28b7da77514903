package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"go.uber.org/zap"
)

const eventColumns = `id, tenant_id, type, source, payload, occurred_at, idempotency_key, created_at`

// EventRepository implements the repositories.EventRepository interface
type EventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB, logger *zap.Logger) repositories.EventRepository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new event
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	payload, err := marshalJSON(event.Payload)
	if err != nil {
		return err
	}

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		event.ID,
		event.TenantID,
		event.Type,
		event.Source,
		payload,
		event.OccurredAt,
		event.IdempotencyKey,
		event.CreatedAt,
	)
	if err != nil {
		return translateError(err, "failed to create event")
	}

	r.logger.Debug("event created",
		zap.String("id", event.ID.String()),
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("type", event.Type),
	)
	return nil
}

// GetByID retrieves an event by ID
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByTenantAndID retrieves an event scoped to a tenant
func (r *EventRepository) GetByTenantAndID(ctx context.Context, tenantID, id uuid.UUID) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE tenant_id = $1 AND id = $2`
	return r.getOne(ctx, query, tenantID, id)
}

func (r *EventRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Event, error) {
	executor := GetExecutor(ctx, r.db)
	event := &models.Event{}
	var payload []byte

	err := executor.QueryRowContext(ctx, query, args...).Scan(
		&event.ID,
		&event.TenantID,
		&event.Type,
		&event.Source,
		&payload,
		&event.OccurredAt,
		&event.IdempotencyKey,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err, "failed to get event")
	}

	if event.Payload, err = unmarshalJSONMap(payload); err != nil {
		return nil, err
	}
	return event, nil
}
