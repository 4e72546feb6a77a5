/*
Package sqlite provides a SQLite-backed implementation of the attendance
storage interfaces.

PURPOSE:
  Implements attendance.Repository and attendance.AuditLog on SQLite. This
  is the default backend for cmd/server.

INTERFACES IMPLEMENTED:
  attendance.Store:         Attendance records keyed by employee-day
  attendance.EmployeeStore: Employee profiles
  attendance.AuditLog:      Append-only log of attendance attempts

CONDITIONAL WRITES:
  Put never read-modify-writes. Each transition is a single statement
  whose WHERE clause encodes the state it was computed from:
  - check-in:  INSERT; a primary-key conflict means someone else checked in
  - check-out: UPDATE ... WHERE check_out IS NULL AND check_in = ?
               zero rows affected means the record moved on
  Both cases return attendance.ErrConcurrentModification. This holds even
  when several processes share one database file.

KEY TABLES:
  employees:  Profiles (hourly_rate as decimal TEXT, lossless)
  attendance: One row per employee-day, timestamps as RFC3339Nano UTC TEXT
  audit_log:  Every Apply attempt, ordered by seq

INDEXES:
  - idx_attendance_employee_date: Latest() lookup (hot path on check-out)
  - idx_attendance_date:          ListAll ordering
  - idx_audit_employee:           Per-employee audit listing

CONCURRENCY:
  Uses sync.RWMutex for in-process thread-safety. Cross-process safety
  comes from the conditional statements above.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  machine := attendance.NewMachine(store, time.Local)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - attendance/store.go: Interface definitions
  - attendance/store/memory.go: In-memory implementation for testing
  - store/mongodb/mongodb.go: MongoDB implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/attendance-engine/attendance"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ attendance.Repository = (*Store)(nil)
	_ attendance.AuditLog   = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Employees (written once at registration)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Attendance records: id = employee_id || '-' || date
	CREATE TABLE IF NOT EXISTS attendance (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		check_in TEXT,
		check_out TEXT,
		CHECK (check_out IS NULL OR check_in IS NOT NULL)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_employee_date
		ON attendance(employee_id, date DESC);
	CREATE INDEX IF NOT EXISTS idx_attendance_date
		ON attendance(date DESC, employee_id);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		at TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		event TEXT NOT NULL,
		date TEXT,
		outcome TEXT NOT NULL,
		detail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_employee
		ON audit_log(employee_id, seq DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ATTENDANCE STORE (attendance.Store interface)
// =============================================================================

const recordColumns = "id, employee_id, date, check_in, check_out"

// Get returns the record for employee+date, or nil.
func (s *Store) Get(ctx context.Context, employeeID, date string) (*attendance.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM attendance WHERE employee_id = ? AND date = ?",
		employeeID, date,
	)
	return scanOne(row)
}

// Latest returns the employee's most recent record by date, or nil.
func (s *Store) Latest(ctx context.Context, employeeID string) (*attendance.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM attendance WHERE employee_id = ? ORDER BY date DESC LIMIT 1",
		employeeID,
	)
	return scanOne(row)
}

// Put conditionally writes a record.
func (s *Store) Put(ctx context.Context, rec attendance.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID != attendance.RecordID(rec.EmployeeID, rec.Date) {
		return attendance.ErrInvalidRecord
	}

	switch rec.State() {
	case attendance.StateCheckedIn:
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO attendance ("+recordColumns+") VALUES (?, ?, ?, ?, NULL)",
			rec.ID, rec.EmployeeID, rec.Date, formatTime(*rec.CheckIn),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return attendance.ErrConcurrentModification
			}
			return fmt.Errorf("failed to insert attendance record: %w", err)
		}
		return nil

	case attendance.StateComplete:
		if !rec.CheckOut.After(*rec.CheckIn) {
			return attendance.ErrCheckOutNotAfterCheckIn
		}
		res, err := s.db.ExecContext(ctx, `
			UPDATE attendance SET check_out = ?
			WHERE id = ? AND check_out IS NULL AND check_in = ?`,
			formatTime(*rec.CheckOut), rec.ID, formatTime(*rec.CheckIn),
		)
		if err != nil {
			return fmt.Errorf("failed to update attendance record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return attendance.ErrConcurrentModification
		}
		return nil

	default:
		return attendance.ErrInvalidRecord
	}
}

// ListAll returns every record, date descending then employee id.
func (s *Store) ListAll(ctx context.Context) ([]attendance.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM attendance ORDER BY date DESC, employee_id ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []attendance.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (attendance.AttendanceRecord, error) {
	var rec attendance.AttendanceRecord
	var checkIn, checkOut sql.NullString
	if err := sc.Scan(&rec.ID, &rec.EmployeeID, &rec.Date, &checkIn, &checkOut); err != nil {
		return rec, err
	}
	var err error
	if rec.CheckIn, err = parseNullTime(checkIn); err != nil {
		return rec, fmt.Errorf("record %s check_in: %w", rec.ID, err)
	}
	if rec.CheckOut, err = parseNullTime(checkOut); err != nil {
		return rec, fmt.Errorf("record %s check_out: %w", rec.ID, err)
	}
	return rec, nil
}

func scanOne(row *sql.Row) (*attendance.AttendanceRecord, error) {
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// =============================================================================
// EMPLOYEE STORE (attendance.EmployeeStore interface)
// =============================================================================

// SaveEmployee registers a new employee. Existing ids are rejected.
func (s *Store) SaveEmployee(ctx context.Context, emp attendance.EmployeeProfile) error {
	if err := attendance.ValidateProfile(emp); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := emp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO employees (id, name, hourly_rate, created_at) VALUES (?, ?, ?, ?)",
		emp.ID, emp.Name, emp.HourlyRate.String(), formatTime(createdAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return attendance.ErrEmployeeExists
		}
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(ctx context.Context, id string) (*attendance.EmployeeProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, hourly_rate, created_at FROM employees WHERE id = ?",
		id,
	)
	emp, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// ListEmployees returns all employees ordered by id.
func (s *Store) ListEmployees(ctx context.Context) ([]attendance.EmployeeProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, hourly_rate, created_at FROM employees ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []attendance.EmployeeProfile
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

func scanEmployee(sc scanner) (attendance.EmployeeProfile, error) {
	var emp attendance.EmployeeProfile
	var rate, createdAt string
	if err := sc.Scan(&emp.ID, &emp.Name, &rate, &createdAt); err != nil {
		return emp, err
	}
	var err error
	if emp.HourlyRate, err = decimal.NewFromString(rate); err != nil {
		return emp, fmt.Errorf("employee %s hourly_rate: %w", emp.ID, err)
	}
	emp.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return emp, nil
}

// =============================================================================
// AUDIT LOG (attendance.AuditLog interface)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e attendance.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, at, employee_id, event, date, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.At), e.EmployeeID, string(e.Event),
		nullString(e.Date), e.Outcome, nullString(e.Detail),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns entries newest first.
func (s *Store) ListAudit(ctx context.Context, filter attendance.AuditFilter) ([]attendance.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, at, employee_id, event, date, outcome, detail FROM audit_log"
	var args []any
	if filter.EmployeeID != "" {
		query += " WHERE employee_id = ?"
		args = append(args, filter.EmployeeID)
	}
	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []attendance.AuditEntry
	for rows.Next() {
		var e attendance.AuditEntry
		var at, event string
		var date, detail sql.NullString
		if err := rows.Scan(&e.ID, &at, &e.EmployeeID, &event, &date, &e.Outcome, &detail); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Event = attendance.EventType(event)
		e.Date = date.String
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"attendance", "employees", "audit_log"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// formatTime stores instants in UTC so the text form is canonical and the
// check_in equality in Put compares like with like.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}
