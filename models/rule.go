package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionType identifies what a rule does when it matches
type ActionType string

const (
	ActionTypeNotify ActionType = "notify"
)

// Channel identifies a notification delivery channel
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
)

// RuleStatus represents whether a rule is evaluated
type RuleStatus string

const (
	RuleStatusActive RuleStatus = "active"
	RuleStatusPaused RuleStatus = "paused"
)

// Rule is a versioned, tenant-scoped automation rule
type Rule struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	TenantID   uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	Name       string         `json:"name" db:"name"`
	EventType  string         `json:"event_type" db:"event_type"`
	Version    int            `json:"version" db:"version"`
	Status     RuleStatus     `json:"status" db:"status"`
	Definition RuleDefinition `json:"definition" db:"definition"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Rule model
func (Rule) TableName() string {
	return "rules"
}

// NewRule creates an active version 1 rule
func NewRule(tenantID uuid.UUID, name, eventType string, definition RuleDefinition) *Rule {
	now := time.Now().UTC()
	return &Rule{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Name:       name,
		EventType:  eventType,
		Version:    1,
		Status:     RuleStatusActive,
		Definition: definition,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsActive checks if the rule is evaluated against incoming events
func (r *Rule) IsActive() bool {
	return r.Status == RuleStatusActive
}

// RuleDefinition is the stored JSON body of a rule
type RuleDefinition struct {
	Conditions Conditions `json:"conditions"`
	Actions    []Action   `json:"actions"`
}

// Conditions holds the predicates a payload must satisfy.
// Every populated predicate kind must hold for the rule to match.
type Conditions struct {
	Equals map[string]interface{} `json:"equals,omitempty"`
}

// IsEmpty reports whether no predicate is configured
func (c Conditions) IsEmpty() bool {
	return len(c.Equals) == 0
}

// Action is a side effect executed when a rule matches
type Action struct {
	Type        ActionType `json:"type"`
	Channel     Channel    `json:"channel,omitempty"`
	Subject     *string    `json:"subject,omitempty"`
	Template    *string    `json:"template,omitempty"`
	Destination *string    `json:"destination,omitempty"`
}
