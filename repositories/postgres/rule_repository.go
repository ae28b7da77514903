package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"go.uber.org/zap"
)

// RuleRepository implements the repositories.RuleRepository interface
type RuleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *DB, logger *zap.Logger) repositories.RuleRepository {
	return &RuleRepository{
		db:     db,
		logger: logger,
	}
}

// ListActive retrieves active rules for a tenant and event type.
// Rows are ordered by version descending, then by creation time.
func (r *RuleRepository) ListActive(ctx context.Context, tenantID uuid.UUID, eventType string) ([]*models.Rule, error) {
	query := `
		SELECT id, tenant_id, name, event_type, version, status, definition, created_at, updated_at
		FROM rules
		WHERE tenant_id = $1 AND event_type = $2 AND status = 'active'
		ORDER BY version DESC, created_at ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.Rule
	for rows.Next() {
		rule := &models.Rule{}
		var definition []byte
		err := rows.Scan(
			&rule.ID,
			&rule.TenantID,
			&rule.Name,
			&rule.EventType,
			&rule.Version,
			&rule.Status,
			&definition,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if len(definition) > 0 {
			if err := json.Unmarshal(definition, &rule.Definition); err != nil {
				return nil, fmt.Errorf("failed to decode definition of rule %s: %w", rule.ID, err)
			}
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}

	r.logger.Debug("active rules loaded",
		zap.String("tenant_id", tenantID.String()),
		zap.String("event_type", eventType),
		zap.Int("count", len(rules)),
	)
	return rules, nil
}
