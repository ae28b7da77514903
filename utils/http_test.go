package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := WriteJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})

		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"status":"enqueued"}`, w.Body.String())
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, WriteJSON(w, http.StatusOK, nil))
		assert.Empty(t, w.Body.String())
	})
}

func TestWriteOK(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteOK(w, map[string]int{"events_ingested": 3}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"events_ingested":3}}`, w.Body.String())
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name    string
		write   func(w http.ResponseWriter) error
		status  int
		code    string
		message string
	}{
		{"bad request", func(w http.ResponseWriter) error { return WriteBadRequest(w, "bad", nil) }, http.StatusBadRequest, "bad_request", "bad"},
		{"unauthorized default", func(w http.ResponseWriter) error { return WriteUnauthorized(w, "") }, http.StatusUnauthorized, "unauthorized", "Authentication required"},
		{"forbidden default", func(w http.ResponseWriter) error { return WriteForbidden(w, "") }, http.StatusForbidden, "forbidden", "Access forbidden"},
		{"not found", func(w http.ResponseWriter) error { return WriteNotFound(w, "event not found") }, http.StatusNotFound, "not_found", "event not found"},
		{"conflict", func(w http.ResponseWriter) error { return WriteConflict(w, "race", nil) }, http.StatusConflict, "conflict", "race"},
		{"quota", func(w http.ResponseWriter) error { return WriteTooManyRequests(w, "", nil) }, http.StatusTooManyRequests, "quota_exceeded", "Quota exceeded"},
		{"internal default", func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") }, http.StatusInternalServerError, "internal_error", "Internal server error"},
		{"unavailable", func(w http.ResponseWriter) error { return WriteServiceUnavailable(w, "", nil) }, http.StatusServiceUnavailable, "service_unavailable", "Service unavailable"},
		{"bad gateway", func(w http.ResponseWriter) error { return WriteError(w, http.StatusBadGateway, "upstream", nil) }, http.StatusBadGateway, "bad_gateway", "upstream"},
		{"unknown status", func(w http.ResponseWriter) error { return WriteError(w, http.StatusTeapot, "tea", nil) }, http.StatusTeapot, "internal_error", "tea"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w))

			assert.Equal(t, tt.status, w.Code)
			response := decodeError(t, w)
			assert.Equal(t, tt.code, response.Error)
			assert.Equal(t, tt.message, response.Message)
		})
	}
}

func TestWriteError_Details(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteServiceUnavailable(w, "event stored but not enqueued", map[string]interface{}{"event_id": "abc"}))

	response := decodeError(t, w)
	assert.Equal(t, "abc", response.Details["event_id"])
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}

	t.Run("valid body keeps numbers exact", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"a","payload":{"code":500}}`))
		var dst body
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, &dst))
		assert.Equal(t, json.Number("500"), dst.Payload["code"])
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		err := DecodeJSON(httptest.NewRecorder(), r, &body{})
		assert.EqualError(t, err, "request body is empty")
	})

	t.Run("malformed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":`))
		err := DecodeJSON(httptest.NewRecorder(), r, &body{})
		assert.ErrorContains(t, err, "invalid JSON body")
	})

	t.Run("trailing data", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"a"}{"type":"b"}`))
		err := DecodeJSON(httptest.NewRecorder(), r, &body{})
		assert.Error(t, err)
	})

	t.Run("oversized", func(t *testing.T) {
		big := `{"type":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
		err := DecodeJSON(httptest.NewRecorder(), r, &body{})
		assert.ErrorContains(t, err, "exceeds")
	})
}
