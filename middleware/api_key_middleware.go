package middleware

import (
	"context"
	"net/http"

	"github.com/upb/signalops/models"
	"github.com/upb/signalops/services"
	"github.com/upb/signalops/utils"
	"go.uber.org/zap"
)

// APIKeyHeader carries the tenant API key on ingestion requests
const APIKeyHeader = "x-api-key"

// TenantAuthenticator resolves a raw API key to its tenant
type TenantAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*models.Tenant, error)
}

// APIKeyMiddleware authenticates tenants by API key
type APIKeyMiddleware struct {
	authenticator TenantAuthenticator
	logger        *zap.Logger
}

// NewAPIKeyMiddleware creates a new APIKeyMiddleware
func NewAPIKeyMiddleware(authenticator TenantAuthenticator, logger *zap.Logger) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		authenticator: authenticator,
		logger:        logger,
	}
}

// RequireAPIKey resolves the x-api-key header and stores the tenant in context
func (m *APIKeyMiddleware) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		rawKey := r.Header.Get(APIKeyHeader)
		if rawKey == "" {
			_ = utils.WriteUnauthorized(w, "Missing API key")
			return
		}

		tenant, err := m.authenticator.Authenticate(ctx, rawKey)
		if err != nil {
			switch {
			case services.IsForbiddenError(err):
				m.logger.Warn("api key for suspended tenant",
					zap.String("request_id", requestID))
				_ = utils.WriteForbidden(w, err.Error())
			case services.IsUnauthorizedError(err):
				m.logger.Warn("api key rejected",
					zap.String("request_id", requestID),
					zap.Error(err))
				_ = utils.WriteUnauthorized(w, err.Error())
			default:
				m.logger.Error("api key authentication failed",
					zap.String("request_id", requestID),
					zap.Error(err))
				_ = utils.WriteInternalServerError(w, "An internal error occurred")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(WithTenant(ctx, tenant)))
	})
}
