package billing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories/repotest"
	"github.com/upb/signalops/services"
	"go.uber.org/zap"
)

func TestService_RecordNotificationSent(t *testing.T) {
	now := time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC)
	tenantID := uuid.New()

	t.Run("increments current period", func(t *testing.T) {
		repo := new(repotest.UsageRepository)
		repo.On("IncrementNotifications", mock.Anything, tenantID, models.CurrentPeriod(now)).Return(nil)

		svc := NewService(repo, zap.NewNop())
		svc.now = func() time.Time { return now }

		require.NoError(t, svc.RecordNotificationSent(context.Background(), tenantID))
		repo.AssertExpectations(t)
	})

	t.Run("storage failure is internal", func(t *testing.T) {
		repo := new(repotest.UsageRepository)
		repo.On("IncrementNotifications", mock.Anything, tenantID, mock.Anything).Return(errors.New("timeout"))

		err := NewService(repo, zap.NewNop()).RecordNotificationSent(context.Background(), tenantID)
		assert.True(t, services.IsInternalError(err))
	})
}

func TestService_RecordNotificationSent_Concurrent(t *testing.T) {
	const workers = 20
	tenantID := uuid.New()
	var count int64

	repo := new(repotest.UsageRepository)
	repo.On("IncrementNotifications", mock.Anything, tenantID, mock.Anything).
		Run(func(mock.Arguments) { atomic.AddInt64(&count, 1) }).
		Return(nil)

	svc := NewService(repo, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.RecordNotificationSent(context.Background(), tenantID))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers), atomic.LoadInt64(&count))
	repo.AssertNumberOfCalls(t, "IncrementNotifications", workers)
}
