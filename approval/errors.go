/*
errors.go - Error types for the approval desk

ERROR CATEGORIES:
  1. Lookup misses   - never errors; they degrade to fallback labels
  2. Fetch failures  - wrapped by callers, logged and degraded
  3. Validation      - caught before anything is sent to the backend
  4. Action failures - approve/reject rejected by the backend or the network

USAGE:
    if errors.Is(err, approval.ErrReasonTooShort) {
        // keep the reject button disabled
    }

    var actionErr *approval.ActionError
    if errors.As(err, &actionErr) {
        // show a banner, local state is untouched
    }
*/
package approval

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when the backend has no record for an id.
	ErrNotFound = errors.New("not found")

	// ErrReasonTooShort is returned when a rejection reason has fewer than
	// MinRejectReasonLength characters after trimming.
	ErrReasonTooShort = errors.New("rejection reason too short")

	// ErrNotEligible is returned when the viewer may not act on a request.
	ErrNotEligible = errors.New("viewer may not act on this request")

	// ErrActionFailed is returned when the backend refuses or fails an action.
	ErrActionFailed = errors.New("action failed")

	// ErrKeyNotFound is returned by key-value stores for missing or expired keys.
	ErrKeyNotFound = errors.New("key not found")

	// ErrDuplicateRecord is returned when a journal entry id is reused.
	ErrDuplicateRecord = errors.New("duplicate action record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes input refused before dispatch.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ActionError wraps a failed approve/reject call.
type ActionError struct {
	Op        Action
	RequestID RequestID
	Err       error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s request %d: %v", e.Op, e.RequestID, e.Err)
}

// Unwrap exposes both the cause and ErrActionFailed to errors.Is.
func (e *ActionError) Unwrap() []error {
	return []error{ErrActionFailed, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error was raised before dispatch.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrKeyNotFound)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return IsValidation(err) ||
		errors.Is(err, ErrReasonTooShort) ||
		errors.Is(err, ErrNotEligible)
}
