/*
Package attendance provides the check-in/check-out engine.

PURPOSE:
  This package owns the attendance record lifecycle: the data model, the
  persistence contract, and the state machine that is the only component
  allowed to mutate an AttendanceRecord. Payroll derivation and reporting
  live in their own packages and only read what this package writes.

KEY CONCEPTS IN THIS FILE (types.go):
  - EmployeeProfile: Who is being tracked and at what hourly rate
  - AttendanceRecord: One employee, one calendar day, two timestamps
  - State: NotStarted -> CheckedIn -> Complete
  - EventType: check-in / check-out

RECORD KEY:
  Records are keyed "<employeeID>-<YYYY-MM-DD>". The date is the local
  calendar date of the check-in; a check-out never moves a record to a
  different day.

IMMUTABILITY:
  CheckIn and CheckOut only ever go from absent to set. Nothing in this
  package overwrites a timestamp once it is stored.

SEE ALSO:
  - machine.go: State transitions
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package attendance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EMPLOYEE PROFILE - Provided by the registration collaborator
// =============================================================================

// EmployeeProfile is read-only to the engine. IDs are assigned by whoever
// registers the employee; the engine never generates them.
type EmployeeProfile struct {
	ID         string
	Name       string
	HourlyRate decimal.Decimal
	CreatedAt  time.Time
}

// =============================================================================
// ATTENDANCE RECORD - One employee, one day
// =============================================================================

type AttendanceRecord struct {
	ID         string
	EmployeeID string
	Date       string // YYYY-MM-DD, local date of the check-in
	CheckIn    *time.Time
	CheckOut   *time.Time
}

// RecordID builds the composite employee-day key.
func RecordID(employeeID, date string) string {
	return employeeID + "-" + date
}

// State reports where the record sits in the check-in/check-out protocol.
// A nil record is NotStarted.
func (r *AttendanceRecord) State() State {
	switch {
	case r == nil || r.CheckIn == nil:
		if r != nil && r.CheckOut != nil {
			return StateInvalid
		}
		return StateNotStarted
	case r.CheckOut == nil:
		return StateCheckedIn
	default:
		return StateComplete
	}
}

// Clone returns a deep copy so callers never share timestamp pointers with
// a store's internal state.
func (r AttendanceRecord) Clone() AttendanceRecord {
	out := r
	if r.CheckIn != nil {
		t := *r.CheckIn
		out.CheckIn = &t
	}
	if r.CheckOut != nil {
		t := *r.CheckOut
		out.CheckOut = &t
	}
	return out
}

// =============================================================================
// STATES AND EVENTS
// =============================================================================

type State string

const (
	StateNotStarted State = "not_started"
	StateCheckedIn  State = "checked_in"
	StateComplete   State = "complete"
	StateInvalid    State = "invalid" // CheckOut without CheckIn; never written by the machine
)

type EventType string

const (
	EventCheckIn  EventType = "check-in"
	EventCheckOut EventType = "check-out"
)

// ParseEventType accepts the two wire names of an attendance event.
func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventCheckIn, EventCheckOut:
		return EventType(s), nil
	default:
		return "", ErrInvalidEvent
	}
}

func (e EventType) String() string { return string(e) }
