package models

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the storage format of period boundaries
const DateLayout = "2006-01-02"

// Period is an inclusive calendar month in UTC
type Period struct {
	Start time.Time
	End   time.Time
}

// CurrentPeriod returns the UTC calendar month containing now.
// Start is the first day of the month and End the last day, both at midnight.
func CurrentPeriod(now time.Time) Period {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return Period{Start: start, End: end}
}

// Key returns a stable identifier for the period, e.g. "2024-01"
func (p Period) Key() string {
	return p.Start.Format("2006-01")
}

// UsageRecord holds per-tenant monthly counters
type UsageRecord struct {
	ID                uuid.UUID `json:"id" db:"id"`
	TenantID          uuid.UUID `json:"tenant_id" db:"tenant_id"`
	PeriodStart       time.Time `json:"period_start" db:"period_start"`
	PeriodEnd         time.Time `json:"period_end" db:"period_end"`
	EventsIngested    int64     `json:"events_ingested" db:"events_ingested"`
	NotificationsSent int64     `json:"notifications_sent" db:"notifications_sent"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the UsageRecord model
func (UsageRecord) TableName() string {
	return "usage_records"
}

// NewUsageRecord returns an empty record for the given period
func NewUsageRecord(tenantID uuid.UUID, period Period) *UsageRecord {
	now := time.Now().UTC()
	return &UsageRecord{
		ID:          uuid.New(),
		TenantID:    tenantID,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
