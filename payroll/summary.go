package payroll

import (
	"sort"

	"github.com/shopspring/decimal"
)

// EmployeeSummary totals derived records for one employee.
type EmployeeSummary struct {
	EmployeeID    string
	EmployeeName  string
	Days          int // records with a check-out
	OpenDays      int // records still checked in
	HoursWorked   decimal.Decimal
	OvertimeHours decimal.Decimal
	Payroll       decimal.Decimal
	ByStatus      map[Status]int
}

// Summarize groups derived records per employee, ordered by employee id.
// Totals add the already-rounded per-day figures so they match the sum of
// the rows a reader sees in the export.
func Summarize(records []DerivedRecord) []EmployeeSummary {
	index := make(map[string]*EmployeeSummary)
	var order []string

	for _, r := range records {
		s, ok := index[r.EmployeeID]
		if !ok {
			s = &EmployeeSummary{
				EmployeeID:    r.EmployeeID,
				EmployeeName:  r.EmployeeName,
				HoursWorked:   decimal.Zero,
				OvertimeHours: decimal.Zero,
				Payroll:       decimal.Zero,
				ByStatus:      make(map[Status]int),
			}
			index[r.EmployeeID] = s
			order = append(order, r.EmployeeID)
		}
		if r.Status == StatusCheckedIn {
			s.OpenDays++
		} else {
			s.Days++
		}
		s.ByStatus[r.Status]++
		s.HoursWorked = s.HoursWorked.Add(r.HoursWorked)
		s.OvertimeHours = s.OvertimeHours.Add(r.OvertimeHours)
		s.Payroll = s.Payroll.Add(r.Payroll)
	}

	sort.Strings(order)
	out := make([]EmployeeSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *index[id])
	}
	return out
}
