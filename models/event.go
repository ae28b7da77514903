package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxIdempotencyKeyLength is the longest idempotency key accepted at ingestion
const MaxIdempotencyKeyLength = 255

// Event is a durable, immutable record of an ingested tenant event
type Event struct {
	ID             uuid.UUID              `json:"id" db:"id"`
	TenantID       uuid.UUID              `json:"tenant_id" db:"tenant_id"`
	Type           string                 `json:"type" db:"type"`
	Source         *string                `json:"source,omitempty" db:"source"`
	Payload        map[string]interface{} `json:"payload" db:"payload"`
	OccurredAt     time.Time              `json:"occurred_at" db:"occurred_at"`
	IdempotencyKey *string                `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Event model
func (Event) TableName() string {
	return "events"
}

// NewEvent builds an event for a tenant. A zero occurredAt defaults to now.
func NewEvent(tenantID uuid.UUID, eventType string, payload map[string]interface{}, occurredAt time.Time) *Event {
	now := time.Now().UTC()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Type:       eventType,
		Payload:    payload,
		OccurredAt: occurredAt,
		CreatedAt:  now,
	}
}

// WithSource sets the optional event source
func (e *Event) WithSource(source string) *Event {
	if source != "" {
		e.Source = &source
	}
	return e
}

// WithIdempotencyKey records the client supplied key on the event
func (e *Event) WithIdempotencyKey(key string) *Event {
	if key != "" {
		e.IdempotencyKey = &key
	}
	return e
}

// IdempotencyRecord maps a (tenant, key) pair to the event it produced
type IdempotencyRecord struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	TenantID       uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	IdempotencyKey string     `json:"idempotency_key" db:"idempotency_key"`
	EventID        *uuid.UUID `json:"event_id,omitempty" db:"event_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the IdempotencyRecord model
func (IdempotencyRecord) TableName() string {
	return "idempotency_keys"
}

// NewIdempotencyRecord links a key to a freshly persisted event
func NewIdempotencyRecord(tenantID uuid.UUID, key string, eventID uuid.UUID) *IdempotencyRecord {
	return &IdempotencyRecord{
		ID:             uuid.New(),
		TenantID:       tenantID,
		IdempotencyKey: key,
		EventID:        &eventID,
		CreatedAt:      time.Now().UTC(),
	}
}
