package backend

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the backend package.
var (
	// ErrMissingBaseURL indicates the backend base URL was not provided.
	ErrMissingBaseURL = errors.New("backend: base URL is required")

	// ErrTimeout indicates the request exceeded its deadline.
	ErrTimeout = errors.New("backend: request timed out")

	// ErrEmptyReply indicates the backend returned no reply text.
	ErrEmptyReply = errors.New("backend: empty reply")
)

// APIError represents an error response from the backend API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error detail from the API.
	Message string

	// Retryable indicates if the request can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend: API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.Retryable
}

// NewAPIError creates a new APIError. Rate limits and server-side
// failures are retryable.
func NewAPIError(statusCode int, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Retryable:  statusCode == 429 || statusCode >= 500,
	}
}

// TransportError wraps a network-level failure.
type TransportError struct {
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("backend: transport error: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsTimeout returns true if the error is a deadline failure.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsRetryable returns true if the request can be retried.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	return IsTimeout(err)
}
