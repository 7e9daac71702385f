package domain

import (
	"errors"
	"fmt"
)

// Engine invariant errors. These are fatal to the current turn but never to
// the session: the next turn starts fresh from the last committed snapshot.
var (
	// ErrSessionNotFound is returned when a session ID is absent or expired.
	ErrSessionNotFound = errors.New("session not found")

	// ErrConflict is returned when an optimistic append loses the race: a
	// concurrent writer already advanced the session past the snapshot's
	// expected predecessor.
	ErrConflict = errors.New("snapshot version conflict")

	// ErrUnknownStep is returned when a directive names a step that was
	// never registered.
	ErrUnknownStep = errors.New("unknown step")

	// ErrStepBudgetExceeded is returned when a single turn runs more steps
	// than the configured budget, which bounds graph cycles.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")

	// ErrNoViableBranch is returned when a fan-out directive finds no
	// candidate satisfying its selection policy.
	ErrNoViableBranch = errors.New("no viable branch")

	// ErrTurnTimeout is returned when the per-turn deadline expires. No
	// partial snapshot is committed.
	ErrTurnTimeout = errors.New("turn deadline exceeded")

	// ErrRegistryFrozen is returned on registration attempts after the
	// registry has been frozen at startup.
	ErrRegistryFrozen = errors.New("step registry is frozen")
)

// FailureKind classifies capability failures surfaced to transition
// functions as values rather than raised through the engine.
type FailureKind string

const (
	FailureUpstreamUnavailable FailureKind = "upstream_unavailable"
	FailureRateLimited         FailureKind = "rate_limited"
	FailureAuthExpired         FailureKind = "auth_expired"
)

// CapabilityError is the typed failure of an external capability call. It
// crosses the engine boundary only as a value inside a CallResult.
type CapabilityError struct {
	Kind FailureKind
	Err  error
}

func (e *CapabilityError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// Retryable reports whether the engine should retry the call with backoff.
// Expired credentials cannot be fixed by retrying.
func (e *CapabilityError) Retryable() bool {
	return e.Kind != FailureAuthExpired
}

// NewCapabilityError wraps err with a failure classification.
func NewCapabilityError(kind FailureKind, err error) *CapabilityError {
	return &CapabilityError{Kind: kind, Err: err}
}

// SchemaError reports a malformed aggregator payload encountered during
// normalization. Records failing the canonical schema are dropped and
// counted, never silently coerced.
type SchemaError struct {
	Field  string // missing or malformed field
	Index  int    // position of the offending record, -1 for payload-level
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("schema error: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("schema error at record %d: %s: %s", e.Index, e.Field, e.Reason)
}
