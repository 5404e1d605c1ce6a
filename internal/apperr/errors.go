// Package apperr holds the typed error kinds shared across the credential
// store, provider router, and orchestrator, so the request surface can map
// them to HTTP status classes with a single set of errors.As checks.
package apperr

import (
	"errors"
	"fmt"
)

// NotConfigured is returned when a start/step call references one or more
// models with no stored API key for the calling user.
type NotConfigured struct {
	ModelNames []string
}

func (e *NotConfigured) Error() string {
	return fmt.Sprintf("missing API key(s) for models: %v", e.ModelNames)
}

// NotImplemented is returned by the provider router for a provider tag with
// no adapter.
type NotImplemented struct {
	Provider string
}

func (e *NotImplemented) Error() string {
	return fmt.Sprintf("provider not implemented: %s", e.Provider)
}

// ProviderError wraps a non-2xx response or malformed stream chunk from an
// LLM endpoint.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the error class is worth retrying: network
// failures, 5xx, and 429.
func (e *ProviderError) Transient() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// CryptoError wraps a seal/unseal failure. It never carries the ciphertext
// or plaintext that failed.
type CryptoError struct {
	Cause error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("crypto error: %v", e.Cause) }
func (e *CryptoError) Unwrap() error { return e.Cause }

// ConflictError is returned on a duplicate (user, modelName) add, or a
// rename that would collide.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string { return fmt.Sprintf("conflict: %s", e.Detail) }

// ValidationError covers bad numeric ranges, empty re-iterate comments, and
// illegal state transitions.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation: %s", e.Detail) }

// Cancelled marks a user-stop or deletion-triggered cancellation. Callers
// must translate it into a SessionStopped transition rather than treating
// it as a failure.
var Cancelled = errors.New("orchestrator: cancelled")
