package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/signalops/internal/queue"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/services/notifications"
	"github.com/upb/signalops/services/rules"
)

type mockQueue struct {
	mock.Mock
	maxAttempts int
}

func (m *mockQueue) Read(ctx context.Context) ([]queue.Job, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]queue.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockQueue) Ack(ctx context.Context, job queue.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *mockQueue) ScheduleRetry(ctx context.Context, job queue.Job, reason string) (time.Duration, error) {
	args := m.Called(ctx, job, reason)
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *mockQueue) DeadLetter(ctx context.Context, job queue.Job, reason string) error {
	return m.Called(ctx, job, reason).Error(0)
}

func (m *mockQueue) MaxAttempts() int {
	return m.maxAttempts
}

type mockClaimer struct {
	mock.Mock
}

func (m *mockClaimer) Claim(ctx context.Context, minIdle time.Duration, count int64) ([]queue.Job, error) {
	args := m.Called(ctx, minIdle, count)
	if v := args.Get(0); v != nil {
		return v.([]queue.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, job queue.Job) error {
	return m.Called(ctx, job).Error(0)
}

type mockEvaluator struct {
	mock.Mock
}

func (m *mockEvaluator) Evaluate(ctx context.Context, event *models.Event) ([]rules.FiredAction, error) {
	args := m.Called(ctx, event)
	if v := args.Get(0); v != nil {
		return v.([]rules.FiredAction), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, tenantID uuid.UUID, channel models.Channel, payload notifications.Payload) error {
	return m.Called(ctx, tenantID, channel, payload).Error(0)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordNotificationSent(ctx context.Context, tenantID uuid.UUID) error {
	return m.Called(ctx, tenantID).Error(0)
}
