/*
errors.go - Centralized error types for the decision engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Validation errors - Malformed input, reported per field
  2. State errors      - Lifecycle transitions that are not allowed
  3. Data errors       - Missing or inconsistent history (fail closed)
  4. Store errors      - Lookups and optimistic-concurrency conflicts

  Policy failures (sanctioned destination, exceeded limits, ...) are NOT
  errors. They are verdicts with flags and never surface through this file.

USAGE:
    if errors.Is(err, generic.ErrIncompleteHistory) {
        // refuse to decide, nothing was written
    }

SEE ALSO:
  - sirw/workflow.go: Returns transition and history errors
  - sirw/service.go: Wraps store failures
  - api/handlers.go: Maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrValidation is the sentinel behind every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrIncompleteHistory is returned when the employee's request history
	// cannot be read. A decision is never made on partial data.
	ErrIncompleteHistory = errors.New("request history unavailable")

	// ErrInconsistentHistory is returned when the history contains requests
	// that cannot belong to the employee being evaluated.
	ErrInconsistentHistory = errors.New("request history inconsistent")

	// ErrInvalidTransition is returned when a request cannot move to the target status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrRequestNotFound is returned when a referenced request doesn't exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrEmployeeNotFound is returned when a referenced employee doesn't exist.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrPolicyNotFound is returned when no policy version has been stored.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrForbidden is returned when an employee touches another employee's request.
	ErrForbidden = errors.New("request belongs to another employee")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError collects field-level problems with a submission.
// Fields maps the wire name of the field to a human-readable message.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty error ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records a problem for field. The first message per field wins.
func (e *ValidationError) Add(field, message string) {
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// OrNil returns nil when no field has been flagged, so callers can
// `return verr.OrNil()` without a typed-nil interface.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// TransitionError describes a refused lifecycle change.
type TransitionError struct {
	RequestID string
	From      string
	To        string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("request %s cannot move from %s to %s", e.RequestID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrIncompleteHistory)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrPolicyNotFound)
}
