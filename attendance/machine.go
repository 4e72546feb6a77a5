/*
machine.go - Check-in/check-out state machine

PURPOSE:
  Enforces the attendance protocol for one employee-day record. This is
  the only code path that mutates an AttendanceRecord.

STATES:
  NotStarted (no record) --check-in--> CheckedIn --check-out--> Complete

  Complete is terminal for the day. A failed transition is final for that
  call; the caller may Apply again once the precondition is fixed.

DAY BOUNDARY:
  The record date is fixed at check-in from the event's local calendar
  date. Check-out does NOT recompute "today": it looks up the employee's
  latest record and closes it if it is open. A check-out at 00:30 closes
  the record opened at 21:00 the previous day.

CONCURRENCY:
  Apply holds a per-employee lock for the whole read-modify-write, and the
  store's conditional Put rejects a write if another process changed the
  record in between. A lost race is reported as the protocol error the
  winner caused (AlreadyCheckedIn / AlreadyCheckedOut).

CANCELLATION:
  ctx is checked before the write. The write is a single Put, so a
  cancelled Apply either wrote the whole record or nothing.

EXAMPLE:
  m := attendance.NewMachine(store, time.Local)
  rec, err := m.Apply(ctx, "emp-1", attendance.EventCheckIn, time.Now())
  if errors.Is(err, attendance.ErrAlreadyCheckedIn) {
      // tell the user
  }

SEE ALSO:
  - store.go: Conditional Put contract
  - errors.go: TransitionError
*/
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Machine applies attendance events against a Store.
type Machine struct {
	Store    Store
	Location *time.Location // day boundary; nil = time.Local
	Audit    AuditLog       // optional
	Logger   *slog.Logger   // nil = slog.Default()

	locks *KeyedMutex
}

// NewMachine creates a state machine over store, partitioning days in loc.
func NewMachine(store Store, loc *time.Location) *Machine {
	return &Machine{
		Store:    store,
		Location: loc,
		locks:    NewKeyedMutex(),
	}
}

// Apply runs one attendance event for employeeID at instant now.
func (m *Machine) Apply(ctx context.Context, employeeID string, event EventType, now time.Time) (AttendanceRecord, error) {
	if employeeID == "" {
		return AttendanceRecord{}, &TransitionError{Event: event, Err: ErrUnknownEmployee}
	}

	unlock := m.locks.Lock(employeeID)
	defer unlock()

	var (
		rec AttendanceRecord
		err error
	)
	switch event {
	case EventCheckIn:
		rec, err = m.checkIn(ctx, employeeID, now)
	case EventCheckOut:
		rec, err = m.checkOut(ctx, employeeID, now)
	default:
		err = &TransitionError{EmployeeID: employeeID, Event: event, Err: ErrInvalidEvent}
	}

	m.record(ctx, employeeID, event, now, rec, err)
	return rec, err
}

// State returns the state of employeeID's record for the local date of at.
func (m *Machine) State(ctx context.Context, employeeID string, at time.Time) (State, error) {
	rec, err := m.Store.Get(ctx, employeeID, LocalDate(at, m.Location))
	if err != nil {
		return "", err
	}
	return rec.State(), nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func (m *Machine) checkIn(ctx context.Context, employeeID string, now time.Time) (AttendanceRecord, error) {
	date := LocalDate(now, m.Location)

	existing, err := m.Store.Get(ctx, employeeID, date)
	if err != nil {
		return AttendanceRecord{}, fmt.Errorf("get attendance record: %w", err)
	}
	if existing != nil {
		return AttendanceRecord{}, &TransitionError{
			EmployeeID: employeeID, Date: date, Event: EventCheckIn,
			State: existing.State(), Err: ErrAlreadyCheckedIn,
		}
	}

	at := now
	rec := AttendanceRecord{
		ID:         RecordID(employeeID, date),
		EmployeeID: employeeID,
		Date:       date,
		CheckIn:    &at,
	}
	if err := m.write(ctx, rec, EventCheckIn, StateNotStarted); err != nil {
		return AttendanceRecord{}, err
	}
	return rec.Clone(), nil
}

func (m *Machine) checkOut(ctx context.Context, employeeID string, now time.Time) (AttendanceRecord, error) {
	today := LocalDate(now, m.Location)

	latest, err := m.Store.Latest(ctx, employeeID)
	if err != nil {
		return AttendanceRecord{}, fmt.Errorf("find open attendance record: %w", err)
	}

	switch latest.State() {
	case StateCheckedIn:
		if !now.After(*latest.CheckIn) {
			return AttendanceRecord{}, &TransitionError{
				EmployeeID: employeeID, Date: latest.Date, Event: EventCheckOut,
				State: StateCheckedIn, Err: ErrCheckOutNotAfterCheckIn,
			}
		}
		next := latest.Clone()
		at := now
		next.CheckOut = &at
		if err := m.write(ctx, next, EventCheckOut, StateCheckedIn); err != nil {
			return AttendanceRecord{}, err
		}
		return next.Clone(), nil

	case StateComplete:
		// Closed today, or closed after midnight for yesterday's shift.
		if latest.Date == today || LocalDate(*latest.CheckOut, m.Location) == today {
			return AttendanceRecord{}, &TransitionError{
				EmployeeID: employeeID, Date: latest.Date, Event: EventCheckOut,
				State: StateComplete, Err: ErrAlreadyCheckedOut,
			}
		}
	}

	return AttendanceRecord{}, &TransitionError{
		EmployeeID: employeeID, Date: today, Event: EventCheckOut,
		State: StateNotStarted, Err: ErrNotCheckedIn,
	}
}

// write performs the conditional Put and translates a lost race into the
// protocol error the winning writer produced.
func (m *Machine) write(ctx context.Context, rec AttendanceRecord, event EventType, from State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := m.Store.Put(ctx, rec)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrConcurrentModification) {
		if errors.Is(err, ErrCheckOutNotAfterCheckIn) {
			return &TransitionError{EmployeeID: rec.EmployeeID, Date: rec.Date, Event: event, State: from, Err: err}
		}
		return fmt.Errorf("put attendance record: %w", err)
	}

	lost := ErrAlreadyCheckedIn
	state := StateCheckedIn
	if event == EventCheckOut {
		lost = ErrAlreadyCheckedOut
		state = StateComplete
	}
	m.logger().Warn("attendance write lost a race",
		"employee_id", rec.EmployeeID, "date", rec.Date, "event", event)
	return &TransitionError{EmployeeID: rec.EmployeeID, Date: rec.Date, Event: event, State: state, Err: lost}
}

// =============================================================================
// AUDIT & LOGGING
// =============================================================================

func (m *Machine) record(ctx context.Context, employeeID string, event EventType, now time.Time, rec AttendanceRecord, err error) {
	outcome := Kind(err)
	date := rec.Date
	var te *TransitionError
	if errors.As(err, &te) {
		date = te.Date
	}

	if err != nil {
		m.logger().Info("attendance event rejected",
			"employee_id", employeeID, "event", event, "date", date, "outcome", outcome, "error", err)
	} else {
		m.logger().Info("attendance event accepted",
			"employee_id", employeeID, "event", event, "date", date)
	}

	if m.Audit == nil {
		return
	}
	entry := AuditEntry{
		ID:         uuid.NewString(),
		At:         now,
		EmployeeID: employeeID,
		Event:      event,
		Date:       date,
		Outcome:    outcome,
	}
	if err != nil {
		entry.Detail = err.Error()
	}
	// The outcome is already decided; a cancelled request still gets audited.
	if aerr := m.Audit.AppendAudit(context.WithoutCancel(ctx), entry); aerr != nil {
		m.logger().Error("failed to append audit entry", "employee_id", employeeID, "error", aerr)
	}
}

func (m *Machine) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
