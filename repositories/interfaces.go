package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/signalops/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert violates a uniqueness constraint
	ErrDuplicate = errors.New("record already exists")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// TenantRepository provides read access to provisioned tenants
type TenantRepository interface {
	// Create inserts a tenant (used by provisioning tooling and tests)
	Create(ctx context.Context, tenant *models.Tenant) error

	// GetByID retrieves a tenant by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)

	// GetBySlug retrieves a tenant by slug
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
}

// EventRepository persists ingested events
type EventRepository interface {
	// Create inserts a new event
	Create(ctx context.Context, event *models.Event) error

	// GetByID retrieves an event by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)

	// GetByTenantAndID retrieves an event only if it belongs to the tenant
	GetByTenantAndID(ctx context.Context, tenantID, id uuid.UUID) (*models.Event, error)
}

// IdempotencyRepository guards (tenant, key) uniqueness
type IdempotencyRepository interface {
	// Get returns the record for (tenant, key) or ErrNotFound
	Get(ctx context.Context, tenantID uuid.UUID, key string) (*models.IdempotencyRecord, error)

	// Create inserts a record, reclaiming a key whose event_id was nulled;
	// returns ErrDuplicate if the key is bound to another event
	Create(ctx context.Context, record *models.IdempotencyRecord) error
}

// UsageRepository maintains per-period usage counters with atomic increments
type UsageRepository interface {
	// GetForPeriod returns the counters for a period or ErrNotFound
	GetForPeriod(ctx context.Context, tenantID uuid.UUID, period models.Period) (*models.UsageRecord, error)

	// LockForPeriod returns the counters for a period, creating a zero row on
	// first use, and holds the row lock until the surrounding transaction ends
	LockForPeriod(ctx context.Context, tenantID uuid.UUID, period models.Period) (*models.UsageRecord, error)

	// IncrementEvents adds one to events_ingested, creating the period row on first use
	IncrementEvents(ctx context.Context, tenantID uuid.UUID, period models.Period) error

	// IncrementNotifications adds one to notifications_sent, creating the period row on first use
	IncrementNotifications(ctx context.Context, tenantID uuid.UUID, period models.Period) error
}

// RuleRepository provides read-only access to active rules
type RuleRepository interface {
	// ListActive returns active rules for (tenant, event type) ordered by version descending
	ListActive(ctx context.Context, tenantID uuid.UUID, eventType string) ([]*models.Rule, error)
}

// NotificationConfigRepository provides read-only access to channel configs
type NotificationConfigRepository interface {
	// GetActive returns the active config for (tenant, channel) or ErrNotFound
	GetActive(ctx context.Context, tenantID uuid.UUID, channel models.Channel) (*models.NotificationConfig, error)
}

// APIKeyRepository handles API key lookups for authentication
type APIKeyRepository interface {
	// ListByPrefix returns all keys sharing the plaintext prefix
	ListByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)

	// TouchLastUsed records the time a key was last used
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// OutboxRepository stores events awaiting publication to the queue
type OutboxRepository interface {
	// Create inserts a pending outbox entry
	Create(ctx context.Context, entry *models.OutboxEntry) error

	// ListPending locks and returns up to limit undispatched entries.
	// Must be called inside a transaction.
	ListPending(ctx context.Context, limit int) ([]*models.OutboxEntry, error)

	// MarkDispatched marks the entry for an event as published
	MarkDispatched(ctx context.Context, eventID uuid.UUID, at time.Time) error

	// RecordFailure increments the attempt counter and stores the error
	RecordFailure(ctx context.Context, id uuid.UUID, reason string) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Tenants             TenantRepository
	Events              EventRepository
	Idempotency         IdempotencyRepository
	Usage               UsageRepository
	Rules               RuleRepository
	NotificationConfigs NotificationConfigRepository
	APIKeys             APIKeyRepository
	Outbox              OutboxRepository
}
