package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/signalops/services"
	"github.com/upb/signalops/utils"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()
	eventID := uuid.New()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{"not found", services.NewNotFoundError("event", nil), http.StatusNotFound, "not_found"},
		{"validation", services.NewValidationError("idempotency key exceeds 255 characters"), http.StatusBadRequest, "bad_request"},
		{"unauthorized", services.ErrInvalidAPIKey, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", services.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"quota", services.NewQuotaExceededError(10, 10), http.StatusTooManyRequests, "quota_exceeded"},
		{"conflict", services.NewConflictError("race", nil), http.StatusConflict, "conflict"},
		{"enqueue after commit", services.NewEnqueueError(eventID, errors.New("redis down")), http.StatusServiceUnavailable, "service_unavailable"},
		{"external", services.WrapExternal("smtp", errors.New("timeout")), http.StatusBadGateway, "bad_gateway"},
		{"internal", services.WrapInternal("db", errors.New("conn refused")), http.StatusInternalServerError, "internal_error"},
		{"unknown", errors.New("plain"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedError, response.Error)
		})
	}
}

func TestHandleServiceError_Details(t *testing.T) {
	logger := zap.NewNop()

	t.Run("quota carries usage", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, services.NewQuotaExceededError(120, 120), logger)

		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.EqualValues(t, 120, response.Details["used"])
		assert.EqualValues(t, 120, response.Details["hard_limit"])
	})

	t.Run("enqueue failure carries event id", func(t *testing.T) {
		eventID := uuid.New()
		w := httptest.NewRecorder()
		HandleServiceError(w, services.NewEnqueueError(eventID, errors.New("redis down")), logger)

		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, eventID.String(), response.Details["event_id"])
		assert.NotContains(t, response.Message, "redis")
	})

	t.Run("internal message redacted", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, services.WrapInternal("failed to store event", errors.New("password=hunter2")), logger)
		assert.NotContains(t, w.Body.String(), "hunter2")
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, nil, logger)
		assert.Empty(t, w.Body.String())
	})
}

func TestHandleValidationError(t *testing.T) {
	type body struct {
		Type string `json:"type" validate:"required"`
	}
	err := utils.ValidateStruct(&body{})

	w := httptest.NewRecorder()
	HandleValidationError(w, err, zap.NewNop())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "type is required", response.Details["type"])

	w = httptest.NewRecorder()
	HandleValidationError(w, errors.New("request body is empty"), zap.NewNop())
	assert.Contains(t, w.Body.String(), "request body is empty")
}
