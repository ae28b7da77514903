// Package repotest provides testify mocks of the repository interfaces and
// an in-memory transaction manager for service-level tests.
package repotest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
)

type txKey struct{}

// TxManager runs fn inline and records the outcome of every transaction
type TxManager struct {
	mu        sync.Mutex
	BeginErr  error
	Commits   int
	Rollbacks int
}

// Begin starts a fake transaction
func (m *TxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	return &Tx{ctx: ctx}, nil
}

// InTransaction runs fn, counting commits and rollbacks
func (m *TxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	if outer, ok := ctx.Value(txKey{}).(*Tx); ok {
		return fn(ctx, outer)
	}
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx, tx); err != nil {
		m.mu.Lock()
		m.Rollbacks++
		m.mu.Unlock()
		return err
	}
	m.mu.Lock()
	m.Commits++
	m.mu.Unlock()
	return nil
}

// InTx reports whether ctx carries a fake transaction
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*Tx)
	return ok
}

// Tx is a no-op transaction
type Tx struct {
	ctx context.Context
}

func (t *Tx) Commit() error { return nil }
func (t *Tx) Rollback() error { return nil }
func (t *Tx) Context() context.Context { return t.ctx }

// TenantRepository is a mock of repositories.TenantRepository
type TenantRepository struct {
	mock.Mock
}

func (m *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	return m.Called(ctx, tenant).Error(0)
}

func (m *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Tenant), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TenantRepository) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	args := m.Called(ctx, slug)
	if v := args.Get(0); v != nil {
		return v.(*models.Tenant), args.Error(1)
	}
	return nil, args.Error(1)
}

// EventRepository is a mock of repositories.EventRepository
type EventRepository struct {
	mock.Mock
}

func (m *EventRepository) Create(ctx context.Context, event *models.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *EventRepository) GetByTenantAndID(ctx context.Context, tenantID, id uuid.UUID) (*models.Event, error) {
	args := m.Called(ctx, tenantID, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

// IdempotencyRepository is a mock of repositories.IdempotencyRepository
type IdempotencyRepository struct {
	mock.Mock
}

func (m *IdempotencyRepository) Get(ctx context.Context, tenantID uuid.UUID, key string) (*models.IdempotencyRecord, error) {
	args := m.Called(ctx, tenantID, key)
	if v := args.Get(0); v != nil {
		return v.(*models.IdempotencyRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *IdempotencyRepository) Create(ctx context.Context, record *models.IdempotencyRecord) error {
	return m.Called(ctx, record).Error(0)
}

// UsageRepository is a mock of repositories.UsageRepository
type UsageRepository struct {
	mock.Mock
}

func (m *UsageRepository) GetForPeriod(ctx context.Context, tenantID uuid.UUID, period models.Period) (*models.UsageRecord, error) {
	args := m.Called(ctx, tenantID, period)
	if v := args.Get(0); v != nil {
		return v.(*models.UsageRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *UsageRepository) LockForPeriod(ctx context.Context, tenantID uuid.UUID, period models.Period) (*models.UsageRecord, error) {
	args := m.Called(ctx, tenantID, period)
	if v := args.Get(0); v != nil {
		return v.(*models.UsageRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *UsageRepository) IncrementEvents(ctx context.Context, tenantID uuid.UUID, period models.Period) error {
	return m.Called(ctx, tenantID, period).Error(0)
}

func (m *UsageRepository) IncrementNotifications(ctx context.Context, tenantID uuid.UUID, period models.Period) error {
	return m.Called(ctx, tenantID, period).Error(0)
}

// RuleRepository is a mock of repositories.RuleRepository
type RuleRepository struct {
	mock.Mock
}

func (m *RuleRepository) ListActive(ctx context.Context, tenantID uuid.UUID, eventType string) ([]*models.Rule, error) {
	args := m.Called(ctx, tenantID, eventType)
	if v := args.Get(0); v != nil {
		return v.([]*models.Rule), args.Error(1)
	}
	return nil, args.Error(1)
}

// NotificationConfigRepository is a mock of repositories.NotificationConfigRepository
type NotificationConfigRepository struct {
	mock.Mock
}

func (m *NotificationConfigRepository) GetActive(ctx context.Context, tenantID uuid.UUID, channel models.Channel) (*models.NotificationConfig, error) {
	args := m.Called(ctx, tenantID, channel)
	if v := args.Get(0); v != nil {
		return v.(*models.NotificationConfig), args.Error(1)
	}
	return nil, args.Error(1)
}

// APIKeyRepository is a mock of repositories.APIKeyRepository
type APIKeyRepository struct {
	mock.Mock
}

func (m *APIKeyRepository) ListByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	args := m.Called(ctx, prefix)
	if v := args.Get(0); v != nil {
		return v.([]*models.APIKey), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *APIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// OutboxRepository is a mock of repositories.OutboxRepository
type OutboxRepository struct {
	mock.Mock
}

func (m *OutboxRepository) Create(ctx context.Context, entry *models.OutboxEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	args := m.Called(ctx, limit)
	if v := args.Get(0); v != nil {
		return v.([]*models.OutboxEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *OutboxRepository) MarkDispatched(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	return m.Called(ctx, eventID, at).Error(0)
}

func (m *OutboxRepository) RecordFailure(ctx context.Context, id uuid.UUID, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

var (
	_ repositories.TransactionManager           = (*TxManager)(nil)
	_ repositories.TenantRepository             = (*TenantRepository)(nil)
	_ repositories.EventRepository              = (*EventRepository)(nil)
	_ repositories.IdempotencyRepository        = (*IdempotencyRepository)(nil)
	_ repositories.UsageRepository              = (*UsageRepository)(nil)
	_ repositories.RuleRepository               = (*RuleRepository)(nil)
	_ repositories.NotificationConfigRepository = (*NotificationConfigRepository)(nil)
	_ repositories.APIKeyRepository             = (*APIKeyRepository)(nil)
	_ repositories.OutboxRepository             = (*OutboxRepository)(nil)
)
