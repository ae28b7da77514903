package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Stream entry field names
const (
	fieldJobID      = "job_id"
	fieldTenantID   = "tenant_id"
	fieldEventID    = "event_id"
	fieldType       = "type"
	fieldAttempt    = "attempt"
	fieldLastError  = "last_error"
	fieldEnqueuedAt = "enqueued_at"
	fieldFailed     = "failed_reason"
)

// JobPayload is the body of a job: {tenantId, eventId, type}
type JobPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	EventID  uuid.UUID `json:"event_id"`
	Type     string    `json:"type"`
}

// Job is a delivered unit of work.
// ID is stable across retries; MessageID identifies the current delivery.
type Job struct {
	ID         string    `json:"job_id"`
	MessageID  string    `json:"-"`
	TenantID   uuid.UUID `json:"tenant_id"`
	EventID    uuid.UUID `json:"event_id"`
	Type       string    `json:"type"`
	Attempt    int       `json:"attempt"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Payload returns the job body
func (j Job) Payload() JobPayload {
	return JobPayload{TenantID: j.TenantID, EventID: j.EventID, Type: j.Type}
}

// values encodes the job as stream entry fields
func (j Job) values() map[string]any {
	attempt := j.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	values := map[string]any{
		fieldTenantID:   j.TenantID.String(),
		fieldEventID:    j.EventID.String(),
		fieldType:       j.Type,
		fieldAttempt:    attempt,
		fieldEnqueuedAt: j.EnqueuedAt.UnixMilli(),
	}
	if j.ID != "" {
		values[fieldJobID] = j.ID
	}
	if j.LastError != "" {
		values[fieldLastError] = j.LastError
	}
	return values
}

// ParseJob decodes a stream entry. First deliveries carry no job_id and
// take the entry id as their job id.
func ParseJob(msg redis.XMessage) (Job, error) {
	tenantID, err := parseUUID(msg.Values, fieldTenantID)
	if err != nil {
		return Job{}, err
	}
	eventID, err := parseUUID(msg.Values, fieldEventID)
	if err != nil {
		return Job{}, err
	}
	jobType := parseOptionalString(msg.Values, fieldType)
	if jobType == "" {
		return Job{}, fmt.Errorf("missing %s", fieldType)
	}

	attempt, err := parseOptionalInt(msg.Values, fieldAttempt)
	if err != nil {
		return Job{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	enqueuedMs, err := parseOptionalInt64(msg.Values, fieldEnqueuedAt)
	if err != nil {
		return Job{}, err
	}

	jobID := parseOptionalString(msg.Values, fieldJobID)
	if jobID == "" {
		jobID = msg.ID
	}

	job := Job{
		ID:        jobID,
		MessageID: msg.ID,
		TenantID:  tenantID,
		EventID:   eventID,
		Type:      jobType,
		Attempt:   attempt,
		LastError: parseOptionalString(msg.Values, fieldLastError),
	}
	if enqueuedMs > 0 {
		job.EnqueuedAt = time.UnixMilli(enqueuedMs).UTC()
	}
	return job, nil
}

// encodeDelayed serialises a job for the delayed retry set
func encodeDelayed(j Job) (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("encoding delayed job: %w", err)
	}
	return string(data), nil
}

func decodeDelayed(member string) (Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(member), &j); err != nil {
		return Job{}, fmt.Errorf("decoding delayed job: %w", err)
	}
	return j, nil
}

func parseUUID(values map[string]any, key string) (uuid.UUID, error) {
	raw, ok := values[key]
	if !ok {
		return uuid.Nil, fmt.Errorf("missing %s", key)
	}
	id, err := uuid.Parse(fmt.Sprint(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing %s: %w", key, err)
	}
	return id, nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}
