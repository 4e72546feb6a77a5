/*
store.go - Persistence interfaces for attendance records and profiles

PURPOSE:
  Defines the boundary between the state machine and the database. Stores
  are a key-value surface with no business rules: get, put, list. The
  state machine and the payroll engine receive a Store explicitly, so tests
  run against the in-memory store and production against SQLite or MongoDB.

KEY INTERFACES:
  Store:         Attendance records keyed by employee-day
  EmployeeStore: Employee profiles keyed by employee id
  Repository:    Both, which is what the HTTP layer and payroll need
  AuditLog:      Append-only log of attendance attempts (optional)

CONDITIONAL PUT:
  A read-modify-write is not atomic by construction. Put therefore applies
  a record only if the stored state is the one the transition was computed
  from:
  - CheckedIn record: no record with that id may exist yet
  - Complete record:  the stored record must have the same CheckIn and no
                      CheckOut
  Anything else fails with ErrConcurrentModification. Two processes sharing
  a database can race on the same employee-day and only one write wins.

IMPLEMENTATIONS:
  - attendance/store/memory.go: In-memory for tests and development
  - store/sqlite/sqlite.go: SQLite
  - store/mongodb/mongodb.go: MongoDB

SEE ALSO:
  - machine.go: The only caller of Put
  - payroll/engine.go: Reads ListAll and ListEmployees
*/
package attendance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Attendance records
// =============================================================================

type Store interface {
	// Get returns the record for employee+date, or nil if none exists.
	Get(ctx context.Context, employeeID, date string) (*AttendanceRecord, error)

	// Latest returns the employee's record with the greatest date, or nil.
	// Check-out uses it to find the open record without assuming "today".
	Latest(ctx context.Context, employeeID string) (*AttendanceRecord, error)

	// Put conditionally writes a record (see CONDITIONAL PUT above).
	Put(ctx context.Context, record AttendanceRecord) error

	// ListAll returns every record, date descending then employee id
	// ascending. The order is stable across calls on unchanged data.
	ListAll(ctx context.Context) ([]AttendanceRecord, error)
}

// EmployeeStore holds profiles written by the registration collaborator.
type EmployeeStore interface {
	GetEmployee(ctx context.Context, id string) (*EmployeeProfile, error)
	ListEmployees(ctx context.Context) ([]EmployeeProfile, error)

	// SaveEmployee registers a new profile. Fails with ErrEmployeeExists
	// if the id is taken.
	SaveEmployee(ctx context.Context, profile EmployeeProfile) error
}

type Repository interface {
	Store
	EmployeeStore
}

// =============================================================================
// AUDIT LOG - Every Apply attempt, accepted or rejected
// =============================================================================

type AuditEntry struct {
	ID         string
	At         time.Time
	EmployeeID string
	Event      EventType
	Date       string // record date when known
	Outcome    string // "accepted" or Kind(err)
	Detail     string
}

// AuditLog is append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	EmployeeID string // empty = all
	Limit      int    // <= 0 = no limit
}

// =============================================================================
// HELPERS FOR IMPLEMENTATIONS
// =============================================================================

// CheckPut validates a conditional write against the currently stored
// record. Store implementations that cannot express the condition in a
// single statement call this under their own lock.
func CheckPut(existing *AttendanceRecord, next AttendanceRecord) error {
	if next.ID != RecordID(next.EmployeeID, next.Date) {
		return ErrInvalidRecord
	}
	switch next.State() {
	case StateCheckedIn:
		if existing != nil {
			return ErrConcurrentModification
		}
		return nil
	case StateComplete:
		if existing == nil || existing.CheckIn == nil || existing.CheckOut != nil {
			return ErrConcurrentModification
		}
		if !existing.CheckIn.Equal(*next.CheckIn) {
			return ErrConcurrentModification
		}
		if !next.CheckOut.After(*next.CheckIn) {
			return ErrCheckOutNotAfterCheckIn
		}
		return nil
	default:
		return ErrInvalidRecord
	}
}

// ValidateProfile checks the fields the engine relies on.
func ValidateProfile(p EmployeeProfile) error {
	if p.ID == "" || p.Name == "" {
		return ErrInvalidProfile
	}
	if p.HourlyRate.LessThan(decimal.Zero) {
		return ErrInvalidProfile
	}
	return nil
}
