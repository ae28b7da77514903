package models

import (
	"time"

	"github.com/google/uuid"
)

// OutboxEntry records an event awaiting publication to the queue.
// It is written in the same transaction as the event.
type OutboxEntry struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	TenantID     uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	EventID      uuid.UUID  `json:"event_id" db:"event_id"`
	EventType    string     `json:"event_type" db:"event_type"`
	Attempts     int        `json:"attempts" db:"attempts"`
	LastError    *string    `json:"last_error,omitempty" db:"last_error"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty" db:"dispatched_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the OutboxEntry model
func (OutboxEntry) TableName() string {
	return "event_outbox"
}

// NewOutboxEntry creates a pending entry for an event
func NewOutboxEntry(event *Event) *OutboxEntry {
	return &OutboxEntry{
		ID:        uuid.New(),
		TenantID:  event.TenantID,
		EventID:   event.ID,
		EventType: event.Type,
		CreatedAt: time.Now().UTC(),
	}
}
