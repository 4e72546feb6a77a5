/*
Package report renders derived attendance records as export files.

PURPOSE:
  Produces the attendance/payroll export in a fixed, deterministic layout.
  The same derived records always render to the same bytes.

FORMATS:
  CSV:  ToCSV / Filename            (plain comma-separated text)
  XLSX: WriteXLSX / XLSXFilename    (single sheet, same columns)

COLUMNS (fixed order):
  Employee ID, Employee Name, Date, Check In, Check Out, Hours Worked,
  Status, Payroll

CELL FORMATS:
  Check In / Check Out  time of day in Options.Location, or "N/A"
  Hours Worked          as rounded by the payroll engine ("10", "3.5", "8.01")
  Payroll               exactly two decimals ("1100.00")

KNOWN LIMITATION:
  CSV fields are joined with commas and are not quoted. Employee ids and
  names are assumed comma-free; a comma in a name shifts that row's columns.

SEE ALSO:
  - payroll/engine.go: Produces the records, already sorted
  - api/handlers.go: Serves the exports
*/
package report

import (
	"strings"
	"time"

	"github.com/warp/attendance-engine/payroll"
)

const (
	// Filename is the suggested download name for the CSV export.
	Filename = "attendance_payroll.csv"

	// NotAvailable fills a missing check-in/check-out cell.
	NotAvailable = "N/A"

	// DefaultTimeLayout matches an en-US locale time-of-day string.
	DefaultTimeLayout = "3:04:05 PM"
)

// Header is the fixed first row of every export.
var Header = []string{
	"Employee ID",
	"Employee Name",
	"Date",
	"Check In",
	"Check Out",
	"Hours Worked",
	"Status",
	"Payroll",
}

// Options controls how timestamps are shown. The zero value renders in
// time.Local with DefaultTimeLayout.
type Options struct {
	Location   *time.Location
	TimeLayout string
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o Options) layout() string {
	if o.TimeLayout == "" {
		return DefaultTimeLayout
	}
	return o.TimeLayout
}

func (o Options) timeOfDay(t *time.Time) string {
	if t == nil {
		return NotAvailable
	}
	return t.In(o.location()).Format(o.layout())
}

// Row renders one record as its export cells.
func Row(r payroll.DerivedRecord, opts Options) []string {
	return []string{
		r.EmployeeID,
		r.EmployeeName,
		r.Date,
		opts.timeOfDay(r.CheckIn),
		opts.timeOfDay(r.CheckOut),
		r.HoursWorked.String(),
		string(r.Status),
		r.Payroll.StringFixed(2),
	}
}

// ToCSV renders records in the given order: a header line plus one line per
// record, separated by "\n" with no trailing newline.
func ToCSV(records []payroll.DerivedRecord, opts Options) string {
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, strings.Join(Header, ","))
	for _, r := range records {
		lines = append(lines, strings.Join(Row(r, opts), ","))
	}
	return strings.Join(lines, "\n")
}
