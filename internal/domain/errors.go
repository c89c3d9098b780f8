package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across repositories and the orchestrator.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleWrite is returned when a stage-completion write observed a job
	// whose state no longer matches the expected pre-stage state. The write
	// is discarded; the authoritative state already advanced elsewhere.
	ErrStaleWrite = errors.New("stale stage write rejected")
)

// ValidationError describes a malformed or incomplete input record. It is
// surfaced per record and never aborts a batch.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// ProviderError is a transport-level classification failure (connection,
// timeout, 5xx). Retryable.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// MalformedResponseError indicates a provider returned output that does not
// conform to the stage contract. Triggers provider fallback, not retry of the
// same provider.
type MalformedResponseError struct {
	Provider string
	Detail   string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("provider %s returned malformed response: %s", e.Provider, e.Detail)
}

// RateLimitedError indicates the provider asked the caller to back off.
// RetryAfter, when non-zero, overrides the default backoff delay.
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s rate limited", e.Provider)
}

// IsTransient reports whether err is a classification failure worth retrying.
// Validation and business-rule outcomes are never transient.
func IsTransient(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return true
	}

	var rateErr *RateLimitedError
	if errors.As(err, &rateErr) {
		return true
	}

	var malformedErr *MalformedResponseError
	return errors.As(err, &malformedErr)
}

// RetryAfterHint extracts a provider-supplied retry delay from err, or zero
// when the error carries none.
func RetryAfterHint(err error) time.Duration {
	var rateErr *RateLimitedError
	if errors.As(err, &rateErr) {
		return rateErr.RetryAfter
	}
	return 0
}
