package ai

import (
	"context"
	"errors"
	"fmt"
)

// Provider error codes
const (
	CodeTimeout     = "PROVIDER_TIMEOUT"
	CodeUnavailable = "PROVIDER_UNAVAILABLE"
	CodeRejected    = "PROVIDER_REJECTED"
	CodeCancelled   = "PROVIDER_CANCELLED"
)

// ErrProviderNotFound when the requested provider id is not registered.
var ErrProviderNotFound = errors.New("provider not found")

// ProviderError classifies a failed provider call. The retryable flag is the
// contract the orchestrator relies on: fatal errors must never be retried.
type ProviderError struct {
	Provider  string
	Code      string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewTimeout builds a retryable timeout error.
func NewTimeout(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Code: CodeTimeout, Retryable: true, Err: err}
}

// NewUnavailable builds a retryable availability error (5xx, 429, network).
func NewUnavailable(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Code: CodeUnavailable, Retryable: true, Err: err}
}

// NewRejected builds a fatal rejection (malformed request, auth, bad model).
func NewRejected(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Code: CodeRejected, Retryable: false, Err: err}
}

// NewCancelled builds the non-retryable error returned when the caller's
// cancellation signal aborted an in-flight call. Distinct from TIMEOUT so
// the orchestrator can finalize a run as CANCELLED rather than FAILED.
func NewCancelled(provider string) *ProviderError {
	return &ProviderError{Provider: provider, Code: CodeCancelled, Retryable: false, Err: context.Canceled}
}

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// Cancelled reports whether err is caller-requested cancellation rather than
// a provider fault.
func Cancelled(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code == CodeCancelled {
		return true
	}
	return errors.Is(err, context.Canceled)
}
