package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TenantStatus represents the lifecycle state of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// TenantPlan represents the commercial plan of a tenant
type TenantPlan string

const (
	TenantPlanFree       TenantPlan = "free"
	TenantPlanPro        TenantPlan = "pro"
	TenantPlanEnterprise TenantPlan = "enterprise"
)

// Default monthly event limits for newly provisioned tenants
const (
	DefaultMonthlySoftLimit int64 = 100000
	DefaultMonthlyHardLimit int64 = 120000
)

var (
	ErrNegativeLimit = errors.New("tenant limits must not be negative")
	ErrHardBelowSoft = errors.New("tenant hard limit must be greater than or equal to soft limit")
)

// Tenant is an isolated customer account scoping all data and quotas
type Tenant struct {
	ID               uuid.UUID              `json:"id" db:"id"`
	Slug             string                 `json:"slug" db:"slug"`
	Name             string                 `json:"name" db:"name"`
	Status           TenantStatus           `json:"status" db:"status"`
	Plan             TenantPlan             `json:"plan" db:"plan"`
	MonthlySoftLimit int64                  `json:"monthly_soft_limit" db:"monthly_soft_limit"`
	MonthlyHardLimit int64                  `json:"monthly_hard_limit" db:"monthly_hard_limit"`
	Metadata         map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Tenant model
func (Tenant) TableName() string {
	return "tenants"
}

// NewTenant creates an active free-plan tenant with the default limits
func NewTenant(name, slug string) *Tenant {
	now := time.Now()
	return &Tenant{
		ID:               uuid.New(),
		Slug:             slug,
		Name:             name,
		Status:           TenantStatusActive,
		Plan:             TenantPlanFree,
		MonthlySoftLimit: DefaultMonthlySoftLimit,
		MonthlyHardLimit: DefaultMonthlyHardLimit,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// IsActive reports whether the tenant may ingest events
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// ValidateLimits checks the quota invariants: limits >= 0 and hard >= soft
func (t *Tenant) ValidateLimits() error {
	if t.MonthlySoftLimit < 0 || t.MonthlyHardLimit < 0 {
		return ErrNegativeLimit
	}
	if t.MonthlyHardLimit < t.MonthlySoftLimit {
		return ErrHardBelowSoft
	}
	return nil
}
