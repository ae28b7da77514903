package notifications

import (
	"context"
	"errors"
)

// Provider delivers a notification over a single channel
type Provider interface {
	// Name returns the channel the provider is registered under (e.g., "email")
	Name() string

	// Send delivers the payload to payload.Destination
	Send(ctx context.Context, payload Payload) error
}

// Payload is the channel-agnostic notification body
type Payload struct {
	Subject     string                 `json:"subject"`
	Message     string                 `json:"message"`
	Destination string                 `json:"destination"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// ProviderError represents a delivery failure reported by a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is a short machine-readable reason
	Code string

	// Message is the error message
	Message string

	// StatusCode is the upstream HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the send may succeed on a later attempt
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is a retryable provider error
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}
