package payroll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
	"github.com/warp/attendance-engine/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func profile(id, name string, rate int64) *attendance.EmployeeProfile {
	return &attendance.EmployeeProfile{ID: id, Name: name, HourlyRate: decimal.NewFromInt(rate)}
}

func record(employeeID string, in time.Time, span time.Duration) attendance.AttendanceRecord {
	date := in.Format(attendance.DateLayout)
	rec := attendance.AttendanceRecord{
		ID:         attendance.RecordID(employeeID, date),
		EmployeeID: employeeID,
		Date:       date,
		CheckIn:    &in,
	}
	if span != 0 {
		out := in.Add(span)
		rec.CheckOut = &out
	}
	return rec
}

func nineAM(day int) time.Time {
	return time.Date(2025, time.March, day, 9, 0, 0, 0, time.UTC)
}

// =============================================================================
// PAY EXAMPLES
// =============================================================================

func TestDerive_TenHours_Overtime(t *testing.T) {
	// GIVEN: rate 100, 09:00 -> 19:00
	e := payroll.NewEngine()
	rec := record("emp-1", nineAM(10), 10*time.Hour)

	// WHEN
	d, ok := e.Derive(rec, profile("emp-1", "Asha", 100))

	// THEN: 8h*100 + 2h*150 = 1100.00
	require.True(t, ok)
	assert.Equal(t, payroll.StatusOvertime, d.Status)
	assert.Equal(t, "1100.00", d.Payroll.StringFixed(2))
	assert.True(t, d.HoursWorked.Equal(decimal.NewFromInt(10)))
	assert.True(t, d.RegularHours.Equal(decimal.NewFromInt(8)))
	assert.True(t, d.OvertimeHours.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "Asha", d.EmployeeName)
}

func TestDerive_ThreeAndAHalfHours_HalfDay(t *testing.T) {
	// GIVEN: rate 50, 09:00 -> 12:30
	e := payroll.NewEngine()
	rec := record("emp-1", nineAM(10), 3*time.Hour+30*time.Minute)

	d, ok := e.Derive(rec, profile("emp-1", "Asha", 50))

	require.True(t, ok)
	assert.Equal(t, payroll.StatusHalfDay, d.Status)
	assert.Equal(t, "175.00", d.Payroll.StringFixed(2))
	assert.Equal(t, "3.5", d.HoursWorked.String())
}

func TestDerive_StatusBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		span   time.Duration
		status payroll.Status
		hours  string
	}{
		{"exactly 8.00 is Present", 8 * time.Hour, payroll.StatusPresent, "8"},
		{"8.01 is Overtime", 8*time.Hour + 36*time.Second, payroll.StatusOvertime, "8.01"},
		{"3.99 is Half-day", 3*time.Hour + 59*time.Minute + 24*time.Second, payroll.StatusHalfDay, "3.99"},
		{"exactly 4.00 is Present", 4 * time.Hour, payroll.StatusPresent, "4"},
		{"just over 8 shows 8.00 but is Overtime", 8*time.Hour + 10*time.Second, payroll.StatusOvertime, "8"},
	}

	e := payroll.NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := e.Derive(record("emp-1", nineAM(10), tt.span), profile("emp-1", "Asha", 10))
			require.True(t, ok)
			assert.Equal(t, tt.status, d.Status)
			assert.Equal(t, tt.hours, d.HoursWorked.String())
		})
	}
}

func TestDerive_OvertimeUsesFullPrecision(t *testing.T) {
	// 8h00m10s at 360/h: 8*360 + (10/3600)*360*1.5 = 2880 + 1.5 = 2881.50
	e := payroll.NewEngine()
	d, _ := e.Derive(record("emp-1", nineAM(10), 8*time.Hour+10*time.Second), profile("emp-1", "Asha", 360))
	assert.Equal(t, "2881.50", d.Payroll.StringFixed(2))
}

func TestDerive_CheckedIn_ZeroHours(t *testing.T) {
	e := payroll.NewEngine()
	d, ok := e.Derive(record("emp-1", nineAM(10), 0), profile("emp-1", "Asha", 100))

	require.True(t, ok)
	assert.Equal(t, payroll.StatusCheckedIn, d.Status)
	assert.True(t, d.HoursWorked.IsZero())
	assert.True(t, d.Payroll.IsZero())
	assert.Nil(t, d.CheckOut)
}

func TestDerive_CheckOutBeforeCheckIn_ZeroHours(t *testing.T) {
	e := payroll.NewEngine()
	rec := record("emp-1", nineAM(10), -2*time.Hour)

	d, ok := e.Derive(rec, profile("emp-1", "Asha", 100))

	require.True(t, ok)
	assert.True(t, d.HoursWorked.IsZero())
	assert.True(t, d.Payroll.IsZero())
	assert.Equal(t, payroll.StatusHalfDay, d.Status)
}

func TestDerive_UnknownEmployee_Skipped(t *testing.T) {
	e := payroll.NewEngine()
	_, ok := e.Derive(record("ghost", nineAM(10), time.Hour), nil)
	assert.False(t, ok)
}

func TestDerive_Deterministic(t *testing.T) {
	e := payroll.NewEngine()
	rec := record("emp-1", nineAM(10), 9*time.Hour+17*time.Minute+3*time.Second)
	p := profile("emp-1", "Asha", 123)

	first, _ := e.Derive(rec, p)
	second, _ := e.Derive(rec, p)

	assert.Equal(t, first, second)
}

// =============================================================================
// DERIVE ALL
// =============================================================================

func seed(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveEmployee(ctx, *profile("emp-a", "Asha", 100)))
	require.NoError(t, mem.SaveEmployee(ctx, *profile("emp-b", "Ravi", 50)))

	m := attendance.NewMachine(mem, time.UTC)
	apply := func(emp string, ev attendance.EventType, when time.Time) {
		_, err := m.Apply(ctx, emp, ev, when)
		require.NoError(t, err)
	}
	apply("emp-a", attendance.EventCheckIn, nineAM(10))
	apply("emp-a", attendance.EventCheckOut, nineAM(10).Add(10*time.Hour))
	apply("emp-b", attendance.EventCheckIn, nineAM(10))
	apply("emp-b", attendance.EventCheckOut, nineAM(10).Add(210*time.Minute))
	apply("emp-a", attendance.EventCheckIn, nineAM(11))
	apply("emp-b", attendance.EventCheckIn, nineAM(12))
	// Record for an employee whose profile was removed upstream.
	apply("ghost", attendance.EventCheckIn, nineAM(12))
	return mem
}

func TestDeriveAll_SortedByDateDescending(t *testing.T) {
	mem := seed(t)
	e := payroll.NewEngine()

	derived, err := e.DeriveAll(context.Background(), mem)
	require.NoError(t, err)

	var keys []string
	for _, d := range derived {
		keys = append(keys, d.ID)
	}
	assert.Equal(t, []string{
		"emp-b-2025-03-12",
		"emp-a-2025-03-11",
		"emp-a-2025-03-10",
		"emp-b-2025-03-10",
	}, keys, "ghost is excluded, dates descend, ties keep store order")
}

func TestDeriveAll_StableAcrossCalls(t *testing.T) {
	mem := seed(t)
	e := payroll.NewEngine()
	ctx := context.Background()

	first, err := e.DeriveAll(ctx, mem)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.DeriveAll(ctx, mem)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDeriveAll_ReflectsNewWrites(t *testing.T) {
	mem := seed(t)
	e := payroll.NewEngine()
	ctx := context.Background()

	before, _ := e.DeriveAll(ctx, mem)
	require.Equal(t, payroll.StatusCheckedIn, before[0].Status)

	m := attendance.NewMachine(mem, time.UTC)
	_, err := m.Apply(ctx, "emp-b", attendance.EventCheckOut, nineAM(12).Add(5*time.Hour))
	require.NoError(t, err)

	after, _ := e.DeriveAll(ctx, mem)
	assert.Equal(t, payroll.StatusPresent, after[0].Status)
	assert.Equal(t, "250.00", after[0].Payroll.StringFixed(2))
}

type failingSource struct{}

func (failingSource) ListAll(context.Context) ([]attendance.AttendanceRecord, error) {
	return nil, errors.New("disk on fire")
}

func (failingSource) ListEmployees(context.Context) ([]attendance.EmployeeProfile, error) {
	return nil, nil
}

func TestDeriveAll_StoreError(t *testing.T) {
	_, err := payroll.NewEngine().DeriveAll(context.Background(), failingSource{})
	assert.ErrorContains(t, err, "disk on fire")
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestSummarize(t *testing.T) {
	mem := seed(t)
	derived, err := payroll.NewEngine().DeriveAll(context.Background(), mem)
	require.NoError(t, err)

	sums := payroll.Summarize(derived)
	require.Len(t, sums, 2)

	a := sums[0]
	assert.Equal(t, "emp-a", a.EmployeeID)
	assert.Equal(t, 1, a.Days)
	assert.Equal(t, 1, a.OpenDays)
	assert.Equal(t, "1100.00", a.Payroll.StringFixed(2))
	assert.Equal(t, 1, a.ByStatus[payroll.StatusOvertime])

	b := sums[1]
	assert.Equal(t, "emp-b", b.EmployeeID)
	assert.Equal(t, "175.00", b.Payroll.StringFixed(2))
	assert.Equal(t, "3.5", b.HoursWorked.String())
}
