package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is matched by every *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid transition")

	// OTP verification failures. Surfaced to the caller; a fresh
	// challenge is the only recovery path.
	ErrCodeMismatch     = errors.New("code mismatch")
	ErrCodeExpired      = errors.New("code expired")
	ErrAttemptsExceeded = errors.New("attempts exceeded")

	// Payment rail failures.
	ErrProviderMismatch = errors.New("phone does not match provider prefixes")
	ErrProviderTimeout  = errors.New("provider timeout")
	ErrProviderRejected = errors.New("provider rejected")

	// ErrConcurrencyConflict marks a lost per-entity race whose outcome
	// is equivalent to success. Callers treat it as a no-op.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrInvariantViolation is matched by every *InvariantViolationError.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrRetractionClosed rejects a cancellation after the cooling-off
	// window has elapsed. Terminal, never retryable.
	ErrRetractionClosed = errors.New("retraction window closed")

	ErrNotFound      = errors.New("not found")
	ErrAlreadySigned = errors.New("party already signed")
)

type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s not permitted", e.Entity, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// InvariantViolationError marks money-safety violations (zeroed
// commission, double release). These fail the operation loudly and are
// never silently corrected.
type InvariantViolationError struct {
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Reason
}

func (e *InvariantViolationError) Is(target error) bool {
	return target == ErrInvariantViolation
}
