package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/signalops/internal/queue"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/services/ingestion"
)

type mockIngester struct {
	mock.Mock
}

func (m *mockIngester) Ingest(ctx context.Context, tenant *models.Tenant, input ingestion.EventInput, key string) (*ingestion.IngestResult, error) {
	args := m.Called(ctx, tenant, input, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingestion.IngestResult), args.Error(1)
}

type mockReenqueuer struct {
	mock.Mock
}

func (m *mockReenqueuer) ReenqueueEvent(ctx context.Context, tenantID, eventID uuid.UUID) (string, error) {
	args := m.Called(ctx, tenantID, eventID)
	return args.String(0), args.Error(1)
}

type mockDeadLetters struct {
	mock.Mock
}

func (m *mockDeadLetters) DeadLetters(ctx context.Context, limit int64) ([]queue.DeadLetter, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]queue.DeadLetter), args.Error(1)
}

type mockUsage struct {
	mock.Mock
}

func (m *mockUsage) Usage(ctx context.Context, tenantID uuid.UUID) (*models.UsageRecord, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UsageRecord), args.Error(1)
}
