package usage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/signalops/internal/observability"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"github.com/upb/signalops/repositories/repotest"
	"github.com/upb/signalops/services"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestService(repo *repotest.UsageRepository) *Service {
	svc := NewService(repo, nil, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func testTenant(soft, hard int64) *models.Tenant {
	tenant := models.NewTenant("Acme", "acme")
	tenant.MonthlySoftLimit = soft
	tenant.MonthlyHardLimit = hard
	return tenant
}

func TestService_CheckQuota(t *testing.T) {
	period := models.CurrentPeriod(fixedNow)

	tests := []struct {
		name          string
		record        *models.UsageRecord
		repoErr       error
		wantErr       func(error) bool
		wantUsed      int64
		wantSoftLimit bool
	}{
		{
			name:     "fresh period row",
			record:   &models.UsageRecord{},
			wantUsed: 0,
		},
		{
			name:     "below soft limit",
			record:   &models.UsageRecord{EventsIngested: 5},
			wantUsed: 5,
		},
		{
			name:          "at soft limit",
			record:        &models.UsageRecord{EventsIngested: 8},
			wantUsed:      8,
			wantSoftLimit: true,
		},
		{
			name:          "between soft and hard",
			record:        &models.UsageRecord{EventsIngested: 9},
			wantUsed:      9,
			wantSoftLimit: true,
		},
		{
			name:    "at hard limit",
			record:  &models.UsageRecord{EventsIngested: 10},
			wantErr: services.IsQuotaError,
		},
		{
			name:    "storage failure",
			repoErr: errors.New("connection reset"),
			wantErr: services.IsInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(repotest.UsageRepository)
			tenant := testTenant(8, 10)
			repo.On("LockForPeriod", mock.Anything, tenant.ID, period).Return(tt.record, tt.repoErr)

			result, err := newTestService(repo).CheckQuota(context.Background(), tenant)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUsed, result.Used)
			assert.Equal(t, tt.wantSoftLimit, result.SoftLimitReached)
			assert.Equal(t, period, result.Period)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_CheckQuota_HardLimitDetails(t *testing.T) {
	repo := new(repotest.UsageRepository)
	tenant := testTenant(0, 3)
	repo.On("LockForPeriod", mock.Anything, tenant.ID, mock.Anything).
		Return(&models.UsageRecord{EventsIngested: 3}, nil)

	_, err := newTestService(repo).CheckQuota(context.Background(), tenant)

	details := services.GetErrorDetails(err)
	assert.Equal(t, int64(3), details["used"])
	assert.Equal(t, int64(3), details["hard_limit"])
}

func TestService_CheckQuota_SoftLimitMetric(t *testing.T) {
	repo := new(repotest.UsageRepository)
	tenant := testTenant(1, 10)
	repo.On("LockForPeriod", mock.Anything, tenant.ID, mock.Anything).
		Return(&models.UsageRecord{EventsIngested: 2}, nil)

	reg := prometheus.NewRegistry()
	svc := NewService(repo, observability.NewMetrics(reg), zap.NewNop())

	_, err := svc.CheckQuota(context.Background(), tenant)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "signalops_quota_soft_limit_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestService_CheckQuota_LocksUsageRow(t *testing.T) {
	repo := new(repotest.UsageRepository)
	tenant := testTenant(8, 10)
	repo.On("LockForPeriod", mock.Anything, tenant.ID, models.CurrentPeriod(fixedNow)).
		Return(&models.UsageRecord{EventsIngested: 4}, nil).Once()

	_, err := newTestService(repo).CheckQuota(context.Background(), tenant)
	require.NoError(t, err)

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "GetForPeriod", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_HardLimitBoundary(t *testing.T) {
	// With hard limit N, the N-th ingestion passes (N-1 used) and the N+1-th fails (N used).
	const n = 5
	tenant := testTenant(n, n)

	for used := int64(0); used <= n; used++ {
		t.Run(fmt.Sprintf("used=%d", used), func(t *testing.T) {
			repo := new(repotest.UsageRepository)
			repo.On("LockForPeriod", mock.Anything, tenant.ID, mock.Anything).
				Return(&models.UsageRecord{EventsIngested: used}, nil)

			_, err := newTestService(repo).CheckQuota(context.Background(), tenant)
			if used < n {
				assert.NoError(t, err)
			} else {
				assert.True(t, services.IsQuotaError(err))
			}
		})
	}
}

func TestService_RecordEventIngested(t *testing.T) {
	tenantID := uuid.New()
	period := models.CurrentPeriod(fixedNow)

	t.Run("increments current period", func(t *testing.T) {
		repo := new(repotest.UsageRepository)
		repo.On("IncrementEvents", mock.Anything, tenantID, period).Return(nil)

		require.NoError(t, newTestService(repo).RecordEventIngested(context.Background(), tenantID))
		repo.AssertExpectations(t)
	})

	t.Run("wraps failures", func(t *testing.T) {
		repo := new(repotest.UsageRepository)
		repo.On("IncrementEvents", mock.Anything, tenantID, period).Return(errors.New("deadlock"))

		err := newTestService(repo).RecordEventIngested(context.Background(), tenantID)
		assert.True(t, services.IsInternalError(err))
	})
}

func TestService_Usage(t *testing.T) {
	tenantID := uuid.New()
	period := models.CurrentPeriod(fixedNow)

	t.Run("existing record", func(t *testing.T) {
		repo := new(repotest.UsageRepository)
		repo.On("GetForPeriod", mock.Anything, tenantID, period).
			Return(&models.UsageRecord{TenantID: tenantID, EventsIngested: 4, NotificationsSent: 2}, nil)

		record, err := newTestService(repo).Usage(context.Background(), tenantID)
		require.NoError(t, err)
		assert.Equal(t, int64(4), record.EventsIngested)
		assert.Equal(t, int64(2), record.NotificationsSent)
	})

	t.Run("missing record is zero", func(t *testing.T) {
		repo := new(repotest.UsageRepository)
		repo.On("GetForPeriod", mock.Anything, tenantID, period).Return(nil, repositories.ErrNotFound)

		record, err := newTestService(repo).Usage(context.Background(), tenantID)
		require.NoError(t, err)
		assert.Zero(t, record.EventsIngested)
		assert.Equal(t, period.Start, record.PeriodStart)
		assert.Equal(t, period.End, record.PeriodEnd)
	})
}
