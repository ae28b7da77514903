package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"go.uber.org/zap"
)

const tenantColumns = `id, slug, name, status, plan, monthly_soft_limit, monthly_hard_limit, metadata, created_at, updated_at`

// TenantRepository implements the repositories.TenantRepository interface
type TenantRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB, logger *zap.Logger) repositories.TenantRepository {
	return &TenantRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new tenant
func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	metadata, err := marshalJSON(tenant.Metadata)
	if err != nil {
		return err
	}

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		tenant.ID,
		tenant.Slug,
		tenant.Name,
		tenant.Status,
		tenant.Plan,
		tenant.MonthlySoftLimit,
		tenant.MonthlyHardLimit,
		metadata,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		return translateError(err, "failed to create tenant")
	}

	r.logger.Debug("tenant created", zap.String("id", tenant.ID.String()), zap.String("slug", tenant.Slug))
	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetBySlug retrieves a tenant by slug
func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`
	return r.getOne(ctx, query, slug)
}

func (r *TenantRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Tenant, error) {
	executor := GetExecutor(ctx, r.db)
	tenant := &models.Tenant{}
	var metadata []byte

	err := executor.QueryRowContext(ctx, query, arg).Scan(
		&tenant.ID,
		&tenant.Slug,
		&tenant.Name,
		&tenant.Status,
		&tenant.Plan,
		&tenant.MonthlySoftLimit,
		&tenant.MonthlyHardLimit,
		&metadata,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err, "failed to get tenant")
	}

	if tenant.Metadata, err = unmarshalJSONMap(metadata); err != nil {
		return nil, err
	}
	return tenant, nil
}
