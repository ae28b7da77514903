package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/signalops/internal/queue"
	"github.com/upb/signalops/middleware"
	"github.com/upb/signalops/models"
	"github.com/upb/signalops/services/ingestion"
	"github.com/upb/signalops/utils"
	"go.uber.org/zap"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

// DeadLetterLister reads the dead-letter sink
type DeadLetterLister interface {
	DeadLetters(ctx context.Context, limit int64) ([]queue.DeadLetter, error)
}

// UsageReader returns current-period usage counters
type UsageReader interface {
	Usage(ctx context.Context, tenantID uuid.UUID) (*models.UsageRecord, error)
}

// RequeueResponse is returned by the requeue endpoint
type RequeueResponse struct {
	EventID uuid.UUID `json:"event_id"`
	JobID   string    `json:"job_id"`
}

// AdminHandler serves operator endpoints
type AdminHandler struct {
	reenqueuer  ingestion.Reenqueuer
	deadLetters DeadLetterLister
	usage       UsageReader
	logger      *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(reenqueuer ingestion.Reenqueuer, deadLetters DeadLetterLister, usage UsageReader, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		reenqueuer:  reenqueuer,
		deadLetters: deadLetters,
		usage:       usage,
		logger:      logger,
	}
}

// HandleRequeue handles POST /api/v1/admin/tenants/{tenantID}/events/{eventID}/requeue
func (h *AdminHandler) HandleRequeue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := utils.ParseUUID(chi.URLParam(r, "tenantID"), "tenantID")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	eventID, err := utils.ParseUUID(chi.URLParam(r, "eventID"), "eventID")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	jobID, err := h.reenqueuer.ReenqueueEvent(ctx, tenantID, eventID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	operator := ""
	if claims := middleware.GetClaimsFromContext(ctx); claims != nil {
		operator = claims.Sub
	}
	h.logger.Info("event requeued by operator",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("operator", operator),
		zap.String("tenant_id", tenantID.String()),
		zap.String("event_id", eventID.String()),
		zap.String("job_id", jobID))

	_ = utils.WriteJSON(w, http.StatusAccepted, utils.SuccessResponse{Data: RequeueResponse{EventID: eventID, JobID: jobID}})
}

// HandleListDeadLetters handles GET /api/v1/admin/dead-letters?limit=
func (h *AdminHandler) HandleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := int64(defaultDeadLetterLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 || parsed > maxDeadLetterLimit {
			_ = utils.WriteBadRequest(w, "limit must be between 1 and 500", nil)
			return
		}
		limit = parsed
	}

	entries, err := h.deadLetters.DeadLetters(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read dead letters", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "failed to read dead letters")
		return
	}
	if entries == nil {
		entries = []queue.DeadLetter{}
	}

	_ = utils.WriteOK(w, entries)
}

// HandleGetUsage handles GET /api/v1/admin/tenants/{tenantID}/usage
func (h *AdminHandler) HandleGetUsage(w http.ResponseWriter, r *http.Request) {
	tenantID, err := utils.ParseUUID(chi.URLParam(r, "tenantID"), "tenantID")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	record, err := h.usage.Usage(r.Context(), tenantID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, record)
}
