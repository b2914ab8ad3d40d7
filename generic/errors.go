/*
errors.go - Centralized error types for the ledger core

ERROR CATEGORIES:
  1. Ledger errors - Posting and reversal failures
  2. Validation errors - Rejected input
  3. Integrity conditions - Cache drift (corrected, never returned)

USAGE:
  if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
      // Already posted, safe to ignore
  }
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrTransactionNotFound is returned when reversing an unknown transaction.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrAlreadyReversed is returned when a transaction already has a reversal.
	ErrAlreadyReversed = errors.New("transaction already reversed")

	// ErrEntityNotFound is returned when a referenced worker doesn't exist.
	ErrEntityNotFound = errors.New("worker not found")

	// ErrInvalidInput is the root of every validation failure.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DriftError describes a cached balance that disagreed with its history.
// It is logged and corrected in place; callers never receive it.
type DriftError struct {
	WorkerID WorkerID
	Cached   Balance
	Computed Balance
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("hours bank drift for %s: cached %sh, history %sh",
		e.WorkerID, e.Cached.Hours.StringFixed(2), e.Computed.Hours.StringFixed(2))
}

// Diff returns the absolute hour difference.
func (e *DriftError) Diff() decimal.Decimal { return e.Cached.Hours.Sub(e.Computed.Hours).Abs() }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConflict returns true if the error signals an already-applied change.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) || errors.Is(err, ErrAlreadyReversed)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound) || errors.Is(err, ErrTransactionNotFound)
}
