package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"go.uber.org/zap"
)

// OutboxRepository implements the repositories.OutboxRepository interface
type OutboxRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *DB, logger *zap.Logger) repositories.OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a pending outbox entry
func (r *OutboxRepository) Create(ctx context.Context, entry *models.OutboxEntry) error {
	query := `
		INSERT INTO event_outbox (id, tenant_id, event_id, event_type, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.EventID,
		entry.EventType,
		entry.Attempts,
		entry.CreatedAt,
	)
	if err != nil {
		return translateError(err, "failed to create outbox entry")
	}
	return nil
}

// ListPending locks a batch of undispatched entries, oldest first.
// Rows locked by another relay are skipped.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	query := `
		SELECT id, tenant_id, event_id, event_type, attempts, last_error, dispatched_at, created_at
		FROM event_outbox
		WHERE dispatched_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.OutboxEntry
	for rows.Next() {
		entry := &models.OutboxEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.EventID,
			&entry.EventType,
			&entry.Attempts,
			&entry.LastError,
			&entry.DispatchedAt,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox rows: %w", err)
	}

	return entries, nil
}

// MarkDispatched marks the pending entry for an event as published
func (r *OutboxRepository) MarkDispatched(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	query := `UPDATE event_outbox SET dispatched_at = $2 WHERE event_id = $1 AND dispatched_at IS NULL`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, eventID, at); err != nil {
		return fmt.Errorf("failed to mark outbox entry dispatched: %w", err)
	}

	r.logger.Debug("outbox entry dispatched", zap.String("event_id", eventID.String()))
	return nil
}

// RecordFailure increments the attempt counter and stores the last error
func (r *OutboxRepository) RecordFailure(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE event_outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}
