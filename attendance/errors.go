/*
errors.go - Error taxonomy for the attendance engine

PURPOSE:
  All attendance errors in one place. Every state machine failure is a
  recoverable, user-facing outcome for a single Apply call; none of them
  are fatal to the process and none are retried automatically.

ERROR CATEGORIES:
  1. Protocol errors - Illegal check-in/check-out ordering
  2. Lookup errors - Employee not registered
  3. Store errors - Conditional write lost a race, malformed record

USAGE:
  Callers match with errors.Is; the state machine wraps sentinels in a
  TransitionError carrying the employee, date and observed state:

    if errors.Is(err, attendance.ErrAlreadyCheckedIn) {
        ...
    }

SEE ALSO:
  - machine.go: Produces protocol errors
  - store.go: Produces store errors
  - api/handlers.go: Maps errors to HTTP status codes
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyCheckedIn is returned when today's record already has a check-in.
	ErrAlreadyCheckedIn = errors.New("already checked in today")

	// ErrNotCheckedIn is returned for a check-out with no open record.
	ErrNotCheckedIn = errors.New("must check in before checking out")

	// ErrAlreadyCheckedOut is returned for a check-out on a complete record.
	ErrAlreadyCheckedOut = errors.New("already checked out today")

	// ErrUnknownEmployee is returned by live attendance callers when an
	// identity has no stored profile. Report generation never returns it.
	ErrUnknownEmployee = errors.New("unknown employee")

	// ErrInvalidEvent is returned for an event other than check-in/check-out.
	ErrInvalidEvent = errors.New("invalid attendance event")

	// ErrCheckOutNotAfterCheckIn guards the write-time ordering invariant.
	ErrCheckOutNotAfterCheckIn = errors.New("check-out must be later than check-in")

	// ErrConcurrentModification is returned by a conditional Put when the
	// stored record changed since it was read.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrEmployeeExists is returned when registering an id twice.
	ErrEmployeeExists = errors.New("employee already exists")

	// ErrInvalidRecord is returned by Put for a record that is neither
	// checked-in nor complete.
	ErrInvalidRecord = errors.New("invalid attendance record")

	// ErrInvalidProfile is returned when registering a malformed profile.
	ErrInvalidProfile = errors.New("invalid employee profile")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError reports a rejected attendance event.
type TransitionError struct {
	EmployeeID string
	Date       string
	Event      EventType
	State      State
	Err        error
}

func (e *TransitionError) Error() string {
	if e.Date == "" {
		return fmt.Sprintf("%s rejected for %s: %v", e.Event, e.EmployeeID, e.Err)
	}
	return fmt.Sprintf("%s rejected for %s on %s (state %s): %v",
		e.Event, e.EmployeeID, e.Date, e.State, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsProtocolError returns true for illegal check-in/check-out orderings.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrAlreadyCheckedIn) ||
		errors.Is(err, ErrNotCheckedIn) ||
		errors.Is(err, ErrAlreadyCheckedOut) ||
		errors.Is(err, ErrCheckOutNotAfterCheckIn)
}

// IsConflict returns true if the error reflects the current stored state
// rather than bad input.
func IsConflict(err error) bool {
	return IsProtocolError(err) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrEmployeeExists)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrInvalidProfile)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownEmployee)
}

// Kind returns a stable machine-readable name for an error, used in audit
// entries and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrAlreadyCheckedIn):
		return "already_checked_in"
	case errors.Is(err, ErrNotCheckedIn):
		return "not_checked_in"
	case errors.Is(err, ErrAlreadyCheckedOut):
		return "already_checked_out"
	case errors.Is(err, ErrCheckOutNotAfterCheckIn):
		return "check_out_not_after_check_in"
	case errors.Is(err, ErrUnknownEmployee):
		return "unknown_employee"
	case errors.Is(err, ErrInvalidEvent):
		return "invalid_event"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ErrEmployeeExists):
		return "employee_exists"
	case errors.Is(err, ErrInvalidRecord):
		return "invalid_record"
	case errors.Is(err, ErrInvalidProfile):
		return "invalid_profile"
	default:
		return "internal"
	}
}
