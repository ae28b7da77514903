package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/signalops/middleware"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/services/ingestion"
	"github.com/upb/signalops/utils"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader carries the client supplied deduplication key
const IdempotencyKeyHeader = "idempotency-key"

// IngestEventRequest is the body of POST /events
type IngestEventRequest struct {
	Type       string                 `json:"type" validate:"required,max=120"`
	Source     string                 `json:"source,omitempty" validate:"omitempty,max=255"`
	OccurredAt string                 `json:"occurredAt,omitempty" validate:"omitempty,iso8601"`
	Payload    map[string]interface{} `json:"payload" validate:"required"`
}

// IngestEventResponse is returned for new and replayed events alike
type IngestEventResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

// EventIngester records events for a tenant
type EventIngester interface {
	Ingest(ctx context.Context, tenant *models.Tenant, input ingestion.EventInput, idempotencyKey string) (*ingestion.IngestResult, error)
}

// EventHandler handles tenant event ingestion
type EventHandler struct {
	ingester EventIngester
	logger   *zap.Logger
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(ingester EventIngester, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		ingester: ingester,
		logger:   logger,
	}
}

// HandleIngest handles POST /events.
// New events answer 202, idempotent replays 200, both with {id, status}.
func (h *EventHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	tenant := middleware.GetTenantFromContext(ctx)
	if tenant == nil {
		h.logger.Error("missing tenant in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Missing API key")
		return
	}

	var req IngestEventRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	input := ingestion.EventInput{
		Type:    req.Type,
		Source:  req.Source,
		Payload: req.Payload,
	}
	if req.OccurredAt != "" {
		occurredAt, err := utils.ParseISO8601(req.OccurredAt)
		if err != nil {
			HandleValidationError(w, err, h.logger)
			return
		}
		input.OccurredAt = occurredAt
	}

	result, err := h.ingester.Ingest(ctx, tenant, input, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		h.logger.Warn("event ingestion failed",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	status := http.StatusAccepted
	if result.Replayed {
		status = http.StatusOK
	}

	if err := utils.WriteJSON(w, status, IngestEventResponse{ID: result.Event.ID, Status: "enqueued"}); err != nil {
		h.logger.Error("failed to write ingest response", zap.Error(err))
	}
}
