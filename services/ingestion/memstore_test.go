package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
)

// memStore is an in-memory stand-in for Postgres. Transactions are serialized
// and rolled back by restoring a snapshot, enough to check the coordinator's
// all-or-nothing behaviour.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	events map[uuid.UUID]*models.Event
	keys   map[string]models.IdempotencyRecord
	usage  map[string]models.UsageRecord
	outbox map[uuid.UUID]models.OutboxEntry

	commits   int
	rollbacks int
}

func newMemStore() *memStore {
	return &memStore{
		events: map[uuid.UUID]*models.Event{},
		keys:   map[string]models.IdempotencyRecord{},
		usage:  map[string]models.UsageRecord{},
		outbox: map[uuid.UUID]models.OutboxEntry{},
	}
}

type memSnapshot struct {
	events map[uuid.UUID]*models.Event
	keys   map[string]models.IdempotencyRecord
	usage  map[string]models.UsageRecord
	outbox map[uuid.UUID]models.OutboxEntry
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		events: make(map[uuid.UUID]*models.Event, len(s.events)),
		keys:   make(map[string]models.IdempotencyRecord, len(s.keys)),
		usage:  make(map[string]models.UsageRecord, len(s.usage)),
		outbox: make(map[uuid.UUID]models.OutboxEntry, len(s.outbox)),
	}
	for k, v := range s.events {
		snap.events[k] = v
	}
	for k, v := range s.keys {
		snap.keys[k] = v
	}
	for k, v := range s.usage {
		snap.usage[k] = v
	}
	for k, v := range s.outbox {
		snap.outbox[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events, s.keys, s.usage, s.outbox = snap.events, snap.keys, snap.usage, snap.outbox
}

type memTx struct{ ctx context.Context }

func (t *memTx) Commit() error            { return nil }
func (t *memTx) Rollback() error          { return nil }
func (t *memTx) Context() context.Context { return t.ctx }

func (s *memStore) Begin(ctx context.Context) (repositories.Transaction, error) {
	return &memTx{ctx: ctx}, nil
}

func (s *memStore) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, &memTx{ctx: ctx}); err != nil {
		s.restore(snap)
		s.rollbacks++
		return err
	}
	s.commits++
	return nil
}

func (s *memStore) repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Events:      memEvents{s},
		Idempotency: memKeys{s},
		Usage:       memUsage{s},
		Outbox:      memOutbox{s},
	}
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *memStore) usageFor(tenantID uuid.UUID) models.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[usageKey(tenantID, models.CurrentPeriod(time.Now()))]
}

func (s *memStore) outboxFor(eventID uuid.UUID) (models.OutboxEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if e.EventID == eventID {
			return e, true
		}
	}
	return models.OutboxEntry{}, false
}

type memEvents struct{ s *memStore }

func (r memEvents) Create(_ context.Context, event *models.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.events[event.ID] = event
	return nil
}

func (r memEvents) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.events[id]; ok {
		return e, nil
	}
	return nil, repositories.ErrNotFound
}

func (r memEvents) GetByTenantAndID(ctx context.Context, tenantID, id uuid.UUID) (*models.Event, error) {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.TenantID != tenantID {
		return nil, repositories.ErrNotFound
	}
	return e, nil
}

type memKeys struct{ s *memStore }

func idemKey(tenantID uuid.UUID, key string) string { return tenantID.String() + "|" + key }

func (r memKeys) Get(_ context.Context, tenantID uuid.UUID, key string) (*models.IdempotencyRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec, ok := r.s.keys[idemKey(tenantID, key)]; ok {
		return &rec, nil
	}
	return nil, repositories.ErrNotFound
}

func (r memKeys) Create(_ context.Context, record *models.IdempotencyRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := idemKey(record.TenantID, record.IdempotencyKey)
	if existing, ok := r.s.keys[k]; ok && existing.EventID != nil {
		return repositories.ErrDuplicate
	}
	r.s.keys[k] = *record
	return nil
}

type memUsage struct{ s *memStore }

func usageKey(tenantID uuid.UUID, p models.Period) string { return tenantID.String() + "|" + p.Key() }

func (r memUsage) GetForPeriod(_ context.Context, tenantID uuid.UUID, period models.Period) (*models.UsageRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec, ok := r.s.usage[usageKey(tenantID, period)]; ok {
		return &rec, nil
	}
	return nil, repositories.ErrNotFound
}

func (r memUsage) LockForPeriod(_ context.Context, tenantID uuid.UUID, period models.Period) (*models.UsageRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := usageKey(tenantID, period)
	rec, ok := r.s.usage[k]
	if !ok {
		rec = *models.NewUsageRecord(tenantID, period)
		r.s.usage[k] = rec
	}
	return &rec, nil
}

func (r memUsage) IncrementEvents(_ context.Context, tenantID uuid.UUID, period models.Period) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := usageKey(tenantID, period)
	rec, ok := r.s.usage[k]
	if !ok {
		rec = *models.NewUsageRecord(tenantID, period)
	}
	rec.EventsIngested++
	r.s.usage[k] = rec
	return nil
}

func (r memUsage) IncrementNotifications(_ context.Context, tenantID uuid.UUID, period models.Period) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := usageKey(tenantID, period)
	rec, ok := r.s.usage[k]
	if !ok {
		rec = *models.NewUsageRecord(tenantID, period)
	}
	rec.NotificationsSent++
	r.s.usage[k] = rec
	return nil
}

type memOutbox struct{ s *memStore }

func (r memOutbox) Create(_ context.Context, entry *models.OutboxEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.outbox[entry.ID] = *entry
	return nil
}

func (r memOutbox) ListPending(_ context.Context, limit int) ([]*models.OutboxEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.OutboxEntry
	for _, e := range r.s.outbox {
		if e.DispatchedAt == nil && len(out) < limit {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r memOutbox) MarkDispatched(_ context.Context, eventID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, e := range r.s.outbox {
		if e.EventID == eventID {
			e.DispatchedAt = &at
			r.s.outbox[id] = e
		}
	}
	return nil
}

func (r memOutbox) RecordFailure(_ context.Context, id uuid.UUID, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e := r.s.outbox[id]
	e.Attempts++
	e.LastError = &reason
	r.s.outbox[id] = e
	return nil
}

// fakeProducer records published jobs
type fakeProducer struct {
	mu   sync.Mutex
	jobs []jobRecord
	err  error
}

type jobRecord struct {
	TenantID uuid.UUID
	EventID  uuid.UUID
	Type     string
}
