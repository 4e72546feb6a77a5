package attendance

import (
	"time"
)

// =============================================================================
// CALENDAR DATES - Day partitioning for attendance records
// =============================================================================

// DateLayout is the wire and storage format of AttendanceRecord.Date.
const DateLayout = "2006-01-02"

// LocalDate returns the calendar date of t as observed in loc.
// A nil loc means time.Local.
func LocalDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// ParseDate parses a record date. The result is midnight UTC and is only
// meaningful for ordering.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Clock returns the current instant. Tests replace it to pin "now".
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }
