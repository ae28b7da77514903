package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/services"
	"go.uber.org/zap"
)

type mockAuthenticator struct {
	mock.Mock
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, rawKey string) (*models.Tenant, error) {
	args := m.Called(ctx, rawKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func TestRequireAPIKey(t *testing.T) {
	logger := zap.NewNop()
	tenant := models.NewTenant("Acme", "acme")

	t.Run("resolves tenant into context", func(t *testing.T) {
		auth := new(mockAuthenticator)
		auth.On("Authenticate", mock.Anything, "sk_live").Return(tenant, nil)

		handler := NewAPIKeyMiddleware(auth, logger).RequireAPIKey(okHandler(t, func(r *http.Request) {
			assert.Equal(t, tenant, GetTenantFromContext(r.Context()))
		}))

		req := httptest.NewRequest(http.MethodPost, "/events", nil)
		req.Header.Set("X-API-Key", "sk_live")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	tests := []struct {
		name   string
		header string
		err    error
		status int
	}{
		{"missing header", "", nil, http.StatusUnauthorized},
		{"invalid key", "sk_bad", services.ErrInvalidAPIKey, http.StatusUnauthorized},
		{"suspended tenant", "sk_susp", services.NewDomainError(services.ErrorTypeForbidden, "tenant is suspended", nil), http.StatusForbidden},
		{"storage failure", "sk_err", services.WrapInternal("lookup", errors.New("db down")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := new(mockAuthenticator)
			if tt.header != "" {
				auth.On("Authenticate", mock.Anything, tt.header).Return(nil, tt.err)
			}

			handler := NewAPIKeyMiddleware(auth, logger).RequireAPIKey(okHandler(t, func(*http.Request) {
				t.Error("next handler must not run")
			}))

			req := httptest.NewRequest(http.MethodPost, "/events", nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.NotContains(t, w.Body.String(), "db down")
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetTenantFromContext(ctx))
	assert.Nil(t, GetClaimsFromContext(ctx))
	assert.Empty(t, GetRequestIDFromContext(ctx))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", GetRequestIDFromContext(ctx))
}
