// Package apikeys authenticates tenants by API key.
package apikeys

import (
	"context"
	"errors"
	"time"

	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"github.com/upb/signalops/services"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultPrefixLength is the number of leading key characters stored in clear for lookup
	DefaultPrefixLength = 16
)

// Service resolves raw API keys to tenants
type Service struct {
	keys         repositories.APIKeyRepository
	tenants      repositories.TenantRepository
	prefixLength int
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a new API key service
func NewService(keys repositories.APIKeyRepository, tenants repositories.TenantRepository, prefixLength int, logger *zap.Logger) *Service {
	if prefixLength <= 0 {
		prefixLength = DefaultPrefixLength
	}
	return &Service{
		keys:         keys,
		tenants:      tenants,
		prefixLength: prefixLength,
		logger:       logger,
		now:          time.Now,
	}
}

// Authenticate returns the tenant owning rawKey.
// Unknown, mismatched and expired keys are unauthorized; suspended tenants are forbidden.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (*models.Tenant, error) {
	if rawKey == "" {
		return nil, services.NewDomainError(services.ErrorTypeUnauthorized, "missing API key", nil)
	}

	candidates, err := s.keys.ListByPrefix(ctx, s.prefix(rawKey))
	if err != nil {
		return nil, services.WrapInternal("failed to look up API key", err)
	}

	var match *models.APIKey
	for _, candidate := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidate.KeyHash), []byte(rawKey)) == nil {
			match = candidate
			break
		}
	}
	if match == nil {
		return nil, services.ErrInvalidAPIKey
	}

	now := s.now().UTC()
	if match.IsExpired(now) {
		return nil, services.NewDomainError(services.ErrorTypeUnauthorized, "API key expired", nil)
	}

	tenant, err := s.tenants.GetByID(ctx, match.TenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvalidAPIKey
		}
		return nil, services.WrapInternal("failed to load tenant", err)
	}
	if !tenant.IsActive() {
		return nil, services.NewDomainError(services.ErrorTypeForbidden, "tenant is suspended", nil)
	}

	if err := s.keys.TouchLastUsed(ctx, match.ID, now); err != nil {
		s.logger.Warn("failed to update api key last_used_at",
			zap.String("api_key_id", match.ID.String()),
			zap.Error(err),
		)
	}

	return tenant, nil
}

func (s *Service) prefix(raw string) string {
	if len(raw) <= s.prefixLength {
		return raw
	}
	return raw[:s.prefixLength]
}
