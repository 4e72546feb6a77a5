/*
Package payroll derives hours, status and pay from attendance records.

PURPOSE:
  Turns raw check-in/check-out pairs into displayable figures. Everything
  here is a pure function of (record, profile): no clocks, no caches, no
  writes. A report always reflects the store as it is right now.

PAY RULES (DefaultPolicy):
  hours    = CheckOut - CheckIn, from the timestamp difference
  regular  = min(hours, 8)
  overtime = max(0, hours - 8)
  payroll  = regular*rate + overtime*rate*1.5

STATUS (only once checked out, otherwise "Checked In"):
  hours > 8  -> Overtime
  hours < 4  -> Half-day
  otherwise  -> Present

  Both comparisons are strict: exactly 8.00h and exactly 4.00h are Present.

PRECISION:
  Hours are carried as decimal.Decimal at full precision through the status
  and pay computation; only the returned HoursWorked and Payroll are rounded
  to 2 places. 8h00m10s is therefore Overtime even though it displays 8.00.

UNKNOWN EMPLOYEES:
  A record whose employee has no profile is skipped, not reported as an
  error. Historical reports must survive deleted employees; live check-ins
  reject them upstream.

MALFORMED RECORDS:
  A CheckOut earlier than CheckIn cannot be written by the state machine.
  If one shows up anyway it derives 0 hours rather than negative pay.

SEE ALSO:
  - attendance/machine.go: Produces the records
  - report/csv.go: Renders the derived records
*/
package payroll

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// POLICY
// =============================================================================

type Policy struct {
	RegularHours       decimal.Decimal // per day, paid at base rate
	HalfDayHours       decimal.Decimal // strictly below this is a half day
	OvertimeMultiplier decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		RegularHours:       decimal.NewFromInt(8),
		HalfDayHours:       decimal.NewFromInt(4),
		OvertimeMultiplier: decimal.NewFromFloat(1.5),
	}
}

// DisplayPlaces is the rounding applied to hours and pay.
const DisplayPlaces = 2

// =============================================================================
// DERIVED RECORD
// =============================================================================

type Status string

const (
	StatusPresent   Status = "Present"
	StatusHalfDay   Status = "Half-day"
	StatusOvertime  Status = "Overtime"
	StatusCheckedIn Status = "Checked In"
)

// DerivedRecord is a computed view; it is never persisted.
type DerivedRecord struct {
	attendance.AttendanceRecord

	EmployeeName  string
	HoursWorked   decimal.Decimal // rounded to DisplayPlaces
	RegularHours  decimal.Decimal // rounded to DisplayPlaces
	OvertimeHours decimal.Decimal // rounded to DisplayPlaces
	Status        Status
	Payroll       decimal.Decimal // rounded to DisplayPlaces
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Policy Policy
}

func NewEngine() *Engine {
	return &Engine{Policy: DefaultPolicy()}
}

// Source is what DeriveAll reads. attendance.Repository satisfies it.
type Source interface {
	ListAll(ctx context.Context) ([]attendance.AttendanceRecord, error)
	ListEmployees(ctx context.Context) ([]attendance.EmployeeProfile, error)
}

// Derive computes the payroll view of one record. ok is false when profile
// is nil; the record is then left out of reports.
func (e *Engine) Derive(rec attendance.AttendanceRecord, profile *attendance.EmployeeProfile) (DerivedRecord, bool) {
	if profile == nil {
		return DerivedRecord{}, false
	}

	hours := HoursBetween(rec.CheckIn, rec.CheckOut)
	regular := decimal.Min(hours, e.Policy.RegularHours)
	overtime := decimal.Max(decimal.Zero, hours.Sub(e.Policy.RegularHours))

	pay := regular.Mul(profile.HourlyRate).
		Add(overtime.Mul(profile.HourlyRate).Mul(e.Policy.OvertimeMultiplier))

	return DerivedRecord{
		AttendanceRecord: rec.Clone(),
		EmployeeName:     profile.Name,
		HoursWorked:      hours.Round(DisplayPlaces),
		RegularHours:     regular.Round(DisplayPlaces),
		OvertimeHours:    overtime.Round(DisplayPlaces),
		Status:           e.classify(rec, hours),
		Payroll:          pay.Round(DisplayPlaces),
	}, true
}

func (e *Engine) classify(rec attendance.AttendanceRecord, hours decimal.Decimal) Status {
	if rec.CheckOut == nil {
		return StatusCheckedIn
	}
	switch {
	case hours.GreaterThan(e.Policy.RegularHours):
		return StatusOvertime
	case hours.LessThan(e.Policy.HalfDayHours):
		return StatusHalfDay
	default:
		return StatusPresent
	}
}

// DeriveAll derives every stored record with a resolvable profile, most
// recent date first. Records sharing a date keep the store's order, so
// repeated calls on unchanged data return the same sequence.
func (e *Engine) DeriveAll(ctx context.Context, src Source) ([]DerivedRecord, error) {
	employees, err := src.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	records, err := src.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}

	byID := make(map[string]*attendance.EmployeeProfile, len(employees))
	for i := range employees {
		byID[employees[i].ID] = &employees[i]
	}

	derived := make([]DerivedRecord, 0, len(records))
	for _, rec := range records {
		if d, ok := e.Derive(rec, byID[rec.EmployeeID]); ok {
			derived = append(derived, d)
		}
	}

	// YYYY-MM-DD sorts lexically in date order.
	sort.SliceStable(derived, func(i, j int) bool {
		return derived[i].Date > derived[j].Date
	})
	return derived, nil
}

// HoursBetween returns the hours between two optional timestamps at full
// precision. Missing timestamps and negative spans yield zero.
func HoursBetween(in, out *time.Time) decimal.Decimal {
	if in == nil || out == nil {
		return decimal.Zero
	}
	d := out.Sub(*in)
	if d <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(d)).Div(decimal.NewFromInt(int64(time.Hour)))
}
