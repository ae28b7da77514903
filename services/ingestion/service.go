package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/upb/signalops/internal/observability"
	"github.com/upb/signalops/internal/queue"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/repositories"
	"github.com/upb/signalops/services"
	"github.com/upb/signalops/services/usage"
	"go.uber.org/zap"
)

// errLostRace aborts the transaction when a concurrent request claimed the same key
var errLostRace = errors.New("idempotency key claimed concurrently")

// EventInput is a validated ingestion request body
type EventInput struct {
	Type       string
	Source     string
	OccurredAt time.Time // zero means now
	Payload    map[string]interface{}
}

// IngestResult is the event returned to the caller.
// Replayed is true when the idempotency key matched an earlier event.
type IngestResult struct {
	Event    *models.Event
	Replayed bool
}

// QuotaTracker checks and records per-tenant event usage
type QuotaTracker interface {
	CheckQuota(ctx context.Context, tenant *models.Tenant) (*usage.QuotaCheckResult, error)
	RecordEventIngested(ctx context.Context, tenantID uuid.UUID) error
}

// Reenqueuer publishes a new job for an event that is already stored
type Reenqueuer interface {
	ReenqueueEvent(ctx context.Context, tenantID, eventID uuid.UUID) (string, error)
}

// Config controls optional ingestion behaviour
type Config struct {
	// OutboxEnabled writes an outbox row with every event so the relay can
	// publish it when the post-commit enqueue fails.
	OutboxEnabled bool
}

// Service coordinates idempotency, quota, persistence and enqueue for new events
type Service struct {
	txMgr       repositories.TransactionManager
	events      repositories.EventRepository
	idempotency repositories.IdempotencyRepository
	outbox      repositories.OutboxRepository
	quota       QuotaTracker
	producer    queue.Producer
	cfg         Config
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewService creates a new ingestion service
func NewService(
	txMgr repositories.TransactionManager,
	repos *repositories.Repositories,
	quota QuotaTracker,
	producer queue.Producer,
	cfg Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		txMgr:       txMgr,
		events:      repos.Events,
		idempotency: repos.Idempotency,
		outbox:      repos.Outbox,
		quota:       quota,
		producer:    producer,
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger,
	}
}

var _ Reenqueuer = (*Service)(nil)

// Ingest records an event exactly once per idempotency key and enqueues it
// for rule evaluation. Event, idempotency record, usage increment and outbox
// row commit together; the enqueue runs after commit.
func (s *Service) Ingest(ctx context.Context, tenant *models.Tenant, input EventInput, idempotencyKey string) (*IngestResult, error) {
	if utf8.RuneCountInString(idempotencyKey) > models.MaxIdempotencyKeyLength {
		s.metrics.EventIngested(observability.IngestOutcomeFailed)
		return nil, services.NewValidationError(fmt.Sprintf("idempotency key exceeds %d characters", models.MaxIdempotencyKeyLength))
	}
	if input.Type == "" {
		s.metrics.EventIngested(observability.IngestOutcomeFailed)
		return nil, services.NewValidationError("event type is required")
	}
	if !tenant.IsActive() {
		return nil, services.NewDomainError(services.ErrorTypeForbidden, "tenant is suspended", nil)
	}

	result, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, _ repositories.Transaction) (*IngestResult, error) {
		return s.ingestTx(ctx, tenant, input, idempotencyKey)
	})
	if errors.Is(err, errLostRace) {
		result, err = s.fetchWinner(ctx, tenant.ID, idempotencyKey)
	}
	if err != nil {
		if services.IsQuotaError(err) {
			s.metrics.EventIngested(observability.IngestOutcomeQuotaExceeded)
		} else {
			s.metrics.EventIngested(observability.IngestOutcomeFailed)
		}
		return nil, err
	}

	if result.Replayed {
		s.metrics.EventIngested(observability.IngestOutcomeReplayed)
		s.logger.Debug("idempotent replay",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("event_id", result.Event.ID.String()),
		)
		return result, nil
	}

	s.metrics.EventIngested(observability.IngestOutcomeCreated)

	if _, err := s.enqueue(ctx, result.Event); err != nil {
		s.metrics.EnqueueFailed()
		if s.cfg.OutboxEnabled {
			s.logger.Warn("enqueue failed, outbox relay will publish the event",
				zap.String("tenant_id", tenant.ID.String()),
				zap.String("event_id", result.Event.ID.String()),
				zap.Error(err),
			)
			return result, nil
		}
		s.logger.Error("event committed but enqueue failed",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("event_id", result.Event.ID.String()),
			zap.Error(err),
		)
		return result, services.NewEnqueueError(result.Event.ID, err)
	}

	return result, nil
}

func (s *Service) ingestTx(ctx context.Context, tenant *models.Tenant, input EventInput, key string) (*IngestResult, error) {
	if key != "" {
		existing, err := s.lookup(ctx, tenant.ID, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &IngestResult{Event: existing, Replayed: true}, nil
		}
	}

	if _, err := s.quota.CheckQuota(ctx, tenant); err != nil {
		return nil, err
	}

	event := models.NewEvent(tenant.ID, input.Type, input.Payload, input.OccurredAt).
		WithSource(input.Source).
		WithIdempotencyKey(key)

	if err := s.events.Create(ctx, event); err != nil {
		return nil, services.WrapInternal("failed to store event", err)
	}

	if key != "" {
		if err := s.idempotency.Create(ctx, models.NewIdempotencyRecord(tenant.ID, key, event.ID)); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return nil, errLostRace
			}
			return nil, services.WrapInternal("failed to store idempotency key", err)
		}
	}

	if err := s.quota.RecordEventIngested(ctx, tenant.ID); err != nil {
		return nil, err
	}

	if s.cfg.OutboxEnabled {
		if err := s.outbox.Create(ctx, models.NewOutboxEntry(event)); err != nil {
			return nil, services.WrapInternal("failed to store outbox entry", err)
		}
	}

	s.logger.Info("event ingested",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("event_id", event.ID.String()),
		zap.String("type", event.Type),
	)
	return &IngestResult{Event: event}, nil
}

// lookup returns the event an idempotency key points at, or nil when the key
// is unused or its event no longer exists.
func (s *Service) lookup(ctx context.Context, tenantID uuid.UUID, key string) (*models.Event, error) {
	record, err := s.idempotency.Get(ctx, tenantID, key)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, services.WrapInternal("failed to look up idempotency key", err)
	}
	if record.EventID == nil {
		return nil, nil
	}

	event, err := s.events.GetByID(ctx, *record.EventID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, services.WrapInternal("failed to load replayed event", err)
	}
	return event, nil
}

// fetchWinner resolves a lost idempotency race by returning the event of the
// request that committed first.
func (s *Service) fetchWinner(ctx context.Context, tenantID uuid.UUID, key string) (*IngestResult, error) {
	event, err := s.lookup(ctx, tenantID, key)
	if err != nil {
		return nil, services.NewConflictError("concurrent request with the same idempotency key", err)
	}
	if event == nil {
		return nil, services.NewConflictError("concurrent request with the same idempotency key", errLostRace)
	}

	s.logger.Info("idempotency race resolved to existing event",
		zap.String("tenant_id", tenantID.String()),
		zap.String("event_id", event.ID.String()),
	)
	return &IngestResult{Event: event, Replayed: true}, nil
}

func (s *Service) enqueue(ctx context.Context, event *models.Event) (string, error) {
	jobID, err := s.producer.Enqueue(ctx, queue.JobPayload{
		TenantID: event.TenantID,
		EventID:  event.ID,
		Type:     event.Type,
	})
	if err != nil {
		return "", err
	}

	if s.cfg.OutboxEnabled {
		if err := s.outbox.MarkDispatched(ctx, event.ID, time.Now().UTC()); err != nil {
			// The relay may publish it again; consumers tolerate duplicates.
			s.logger.Warn("failed to mark outbox entry dispatched",
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
		}
	}

	s.logger.Debug("event enqueued",
		zap.String("event_id", event.ID.String()),
		zap.String("job_id", jobID),
	)
	return jobID, nil
}

// ReenqueueEvent publishes a fresh job for a stored event. It is the recovery
// path for events whose post-commit enqueue failed.
func (s *Service) ReenqueueEvent(ctx context.Context, tenantID, eventID uuid.UUID) (string, error) {
	event, err := s.events.GetByTenantAndID(ctx, tenantID, eventID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", services.NewNotFoundError("event", err)
		}
		return "", services.WrapInternal("failed to load event", err)
	}

	jobID, err := s.enqueue(ctx, event)
	if err != nil {
		s.metrics.EnqueueFailed()
		return "", services.NewEnqueueError(event.ID, err)
	}

	s.logger.Info("event re-enqueued",
		zap.String("tenant_id", tenantID.String()),
		zap.String("event_id", eventID.String()),
		zap.String("job_id", jobID),
	)
	return jobID, nil
}
