package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationConfigStatus represents whether a channel configuration is usable
type NotificationConfigStatus string

const (
	NotificationConfigActive   NotificationConfigStatus = "active"
	NotificationConfigDisabled NotificationConfigStatus = "disabled"
)

// NotificationConfig is a tenant's per-channel delivery configuration
type NotificationConfig struct {
	ID        uuid.UUID                `json:"id" db:"id"`
	TenantID  uuid.UUID                `json:"tenant_id" db:"tenant_id"`
	Channel   Channel                  `json:"channel" db:"channel"`
	Status    NotificationConfigStatus `json:"status" db:"status"`
	Config    map[string]interface{}   `json:"config" db:"config"`
	CreatedAt time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt time.Time                `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the NotificationConfig model
func (NotificationConfig) TableName() string {
	return "notification_configs"
}

// Destination returns the configured default recipient, or "" when absent
func (n *NotificationConfig) Destination() string {
	if n == nil || n.Config == nil {
		return ""
	}
	if v, ok := n.Config["destination"].(string); ok {
		return v
	}
	return ""
}

// Setting returns a string value from the channel configuration
func (n *NotificationConfig) Setting(key string) string {
	if n == nil || n.Config == nil {
		return ""
	}
	if v, ok := n.Config[key].(string); ok {
		return v
	}
	return ""
}
