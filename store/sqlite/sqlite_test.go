package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func checkedIn(employeeID, date string, in time.Time) attendance.AttendanceRecord {
	return attendance.AttendanceRecord{
		ID:         attendance.RecordID(employeeID, date),
		EmployeeID: employeeID,
		Date:       date,
		CheckIn:    &in,
	}
}

func completed(rec attendance.AttendanceRecord, out time.Time) attendance.AttendanceRecord {
	next := rec.Clone()
	next.CheckOut = &out
	return next
}

var nine = time.Date(2025, 3, 10, 9, 0, 0, 123456789, time.UTC)

// =============================================================================
// ATTENDANCE RECORDS
// =============================================================================

func TestSQLite_GetMissing_ReturnsNil(t *testing.T) {
	s := newStore(t)

	rec, err := s.Get(context.Background(), "emp-1", "2025-03-10")
	require.NoError(t, err)
	assert.Nil(t, rec)

	latest, err := s.Latest(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSQLite_Put_RoundTripsTimestamps(t *testing.T) {
	// GIVEN: a check-in with nanoseconds in a non-UTC zone
	ctx := context.Background()
	s := newStore(t)
	ist := time.FixedZone("IST", 5*3600+1800)
	in := nine.In(ist)

	// WHEN
	require.NoError(t, s.Put(ctx, checkedIn("emp-1", "2025-03-10", in)))

	// THEN: the same instant comes back
	got, err := s.Get(ctx, "emp-1", "2025-03-10")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.CheckIn.Equal(nine))
	assert.Nil(t, got.CheckOut)
	assert.Equal(t, attendance.StateCheckedIn, got.State())
}

func TestSQLite_Put_ConditionalWrites(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rec := checkedIn("emp-1", "2025-03-10", nine)

	require.NoError(t, s.Put(ctx, rec))

	// Creating the same key again loses.
	assert.ErrorIs(t, s.Put(ctx, rec), attendance.ErrConcurrentModification)

	// Completing from a different check-in loses.
	forged := checkedIn("emp-1", "2025-03-10", nine.Add(time.Minute))
	assert.ErrorIs(t, s.Put(ctx, completed(forged, nine.Add(8*time.Hour))), attendance.ErrConcurrentModification)

	// Completing a record that does not exist loses.
	other := checkedIn("emp-2", "2025-03-10", nine)
	assert.ErrorIs(t, s.Put(ctx, completed(other, nine.Add(8*time.Hour))), attendance.ErrConcurrentModification)

	// Completing correctly wins exactly once.
	require.NoError(t, s.Put(ctx, completed(rec, nine.Add(8*time.Hour))))
	assert.ErrorIs(t, s.Put(ctx, completed(rec, nine.Add(9*time.Hour))), attendance.ErrConcurrentModification)

	got, err := s.Get(ctx, "emp-1", "2025-03-10")
	require.NoError(t, err)
	assert.True(t, got.CheckOut.Equal(nine.Add(8*time.Hour)), "first check-out is never overwritten")
}

func TestSQLite_Put_RejectsMalformed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	noCheckIn := attendance.AttendanceRecord{ID: "emp-1-2025-03-10", EmployeeID: "emp-1", Date: "2025-03-10"}
	assert.ErrorIs(t, s.Put(ctx, noCheckIn), attendance.ErrInvalidRecord)

	wrongKey := checkedIn("emp-1", "2025-03-10", nine)
	wrongKey.ID = "emp-1"
	assert.ErrorIs(t, s.Put(ctx, wrongKey), attendance.ErrInvalidRecord)

	rec := checkedIn("emp-1", "2025-03-10", nine)
	require.NoError(t, s.Put(ctx, rec))
	assert.ErrorIs(t, s.Put(ctx, completed(rec, nine)), attendance.ErrCheckOutNotAfterCheckIn)
}

func TestSQLite_Latest(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Put(ctx, checkedIn("emp-1", "2025-03-09", nine.AddDate(0, 0, -1))))
	require.NoError(t, s.Put(ctx, checkedIn("emp-1", "2025-03-11", nine.AddDate(0, 0, 1))))
	require.NoError(t, s.Put(ctx, checkedIn("emp-1", "2025-03-10", nine)))
	require.NoError(t, s.Put(ctx, checkedIn("emp-2", "2025-03-12", nine.AddDate(0, 0, 2))))

	latest, err := s.Latest(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2025-03-11", latest.Date)
}

func TestSQLite_ListAll_Order(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Put(ctx, checkedIn("emp-b", "2025-03-10", nine)))
	require.NoError(t, s.Put(ctx, checkedIn("emp-a", "2025-03-10", nine)))
	require.NoError(t, s.Put(ctx, checkedIn("emp-a", "2025-03-11", nine.AddDate(0, 0, 1))))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)

	var ids []string
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"emp-a-2025-03-11", "emp-a-2025-03-10", "emp-b-2025-03-10"}, ids)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestSQLite_Employees(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	rate := decimal.RequireFromString("123.456789")
	require.NoError(t, s.SaveEmployee(ctx, attendance.EmployeeProfile{ID: "emp-2", Name: "Ravi", HourlyRate: rate}))
	require.NoError(t, s.SaveEmployee(ctx, attendance.EmployeeProfile{ID: "emp-1", Name: "Asha", HourlyRate: decimal.NewFromInt(100)}))

	// Duplicate id
	err := s.SaveEmployee(ctx, attendance.EmployeeProfile{ID: "emp-1", Name: "Other", HourlyRate: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, attendance.ErrEmployeeExists)

	// Invalid profile
	err = s.SaveEmployee(ctx, attendance.EmployeeProfile{ID: "emp-3", Name: "Neg", HourlyRate: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, attendance.ErrInvalidProfile)

	got, err := s.GetEmployee(ctx, "emp-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.HourlyRate.Equal(rate), "rates are stored losslessly")
	assert.False(t, got.CreatedAt.IsZero())

	missing, err := s.GetEmployee(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "emp-1", all[0].ID)
	assert.Equal(t, "emp-2", all[1].ID)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func TestSQLite_Audit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for i, emp := range []string{"emp-1", "emp-2", "emp-1"} {
		require.NoError(t, s.AppendAudit(ctx, attendance.AuditEntry{
			ID:         string(rune('a' + i)),
			At:         nine.Add(time.Duration(i) * time.Minute),
			EmployeeID: emp,
			Event:      attendance.EventCheckIn,
			Outcome:    "accepted",
		}))
	}

	all, err := s.ListAudit(ctx, attendance.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")
	assert.True(t, all[0].At.Equal(nine.Add(2*time.Minute)))

	mine, err := s.ListAudit(ctx, attendance.AuditFilter{EmployeeID: "emp-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "c", mine[0].ID)
}

func TestSQLite_Reset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveEmployee(ctx, attendance.EmployeeProfile{ID: "emp-1", Name: "Asha", HourlyRate: decimal.NewFromInt(1)}))
	require.NoError(t, s.Put(ctx, checkedIn("emp-1", "2025-03-10", nine)))

	require.NoError(t, s.Reset(ctx))

	all, _ := s.ListAll(ctx)
	emps, _ := s.ListEmployees(ctx)
	assert.Empty(t, all)
	assert.Empty(t, emps)
}

// =============================================================================
// WITH THE STATE MACHINE
// =============================================================================

func TestSQLite_Machine_FullDay(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	m := attendance.NewMachine(s, time.UTC)
	m.Audit = s

	_, err := m.Apply(ctx, "emp-1", attendance.EventCheckIn, nine)
	require.NoError(t, err)
	_, err = m.Apply(ctx, "emp-1", attendance.EventCheckIn, nine.Add(time.Hour))
	assert.ErrorIs(t, err, attendance.ErrAlreadyCheckedIn)

	rec, err := m.Apply(ctx, "emp-1", attendance.EventCheckOut, nine.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, attendance.StateComplete, rec.State())

	_, err = m.Apply(ctx, "emp-1", attendance.EventCheckOut, nine.Add(11*time.Hour))
	assert.ErrorIs(t, err, attendance.ErrAlreadyCheckedOut)

	audit, err := s.ListAudit(ctx, attendance.AuditFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, audit, 4)
}

// Two stores over one file behave like two processes: each has its own
// in-process locks, so only the conditional write keeps them honest.
func TestSQLite_TwoProcesses_OneCheckIn(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	a, err := sqlite.New(path)
	require.NoError(t, err)
	defer a.Close()
	b, err := sqlite.New(path)
	require.NoError(t, err)
	defer b.Close()

	machines := []*attendance.Machine{
		attendance.NewMachine(a, time.UTC),
		attendance.NewMachine(b, time.UTC),
	}

	var wg sync.WaitGroup
	var ok, already atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(m *attendance.Machine) {
			defer wg.Done()
			_, err := m.Apply(ctx, "emp-1", attendance.EventCheckIn, nine)
			switch {
			case err == nil:
				ok.Add(1)
			case attendance.IsConflict(err):
				already.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(machines[i%2])
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(15), already.Load())
}
