package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DeadLetter is a read-only view of a dead-lettered job
type DeadLetter struct {
	EntryID      string    `json:"entry_id"`
	JobID        string    `json:"job_id"`
	FailedReason string    `json:"failed_reason"`
	TenantID     string    `json:"tenant_id,omitempty"`
	EventID      string    `json:"event_id,omitempty"`
	Type         string    `json:"type,omitempty"`
	Attempts     int       `json:"attempts"`
	FailedAt     time.Time `json:"failed_at"`
}

// DeadLetterReader lists dead-lettered jobs for inspection
type DeadLetterReader struct {
	client StreamClient
	stream string
	logger *zap.Logger
}

// NewDeadLetterReader creates a reader for the dead letter stream
func NewDeadLetterReader(client StreamClient, stream string, logger *zap.Logger) *DeadLetterReader {
	return &DeadLetterReader{client: client, stream: stream, logger: logger}
}

// DeadLetters returns up to limit entries, newest first
func (r *DeadLetterReader) DeadLetters(ctx context.Context, limit int64) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}

	messages, err := r.client.XRevRangeN(ctx, r.stream, "+", "-", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange (stream=%s): %w", r.stream, err)
	}

	out := make([]DeadLetter, 0, len(messages))
	for _, msg := range messages {
		attempts, err := parseOptionalInt(msg.Values, fieldAttempt)
		if err != nil {
			r.logger.Warn("bad attempt field in dead letter", zap.String("entry_id", msg.ID), zap.Error(err))
		}
		out = append(out, DeadLetter{
			EntryID:      msg.ID,
			JobID:        parseOptionalString(msg.Values, fieldJobID),
			FailedReason: parseOptionalString(msg.Values, fieldFailed),
			TenantID:     parseOptionalString(msg.Values, fieldTenantID),
			EventID:      parseOptionalString(msg.Values, fieldEventID),
			Type:         parseOptionalString(msg.Values, fieldType),
			Attempts:     attempts,
			FailedAt:     entryTime(msg.ID),
		})
	}
	return out, nil
}

// entryTime extracts the millisecond timestamp prefix of a stream entry id
func entryTime(id string) time.Time {
	var ms int64
	if _, err := fmt.Sscanf(id, "%d-", &ms); err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
