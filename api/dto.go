/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

NUMBERS:
  Money and hours are decimal strings ("1100.00", "3.5") so clients never
  see binary floating point. Requests accept the hourly rate as a JSON
  number or string.

TYPES:
  Employees:  EmployeeDTO, CreateEmployeeRequest
  Attendance: EmployeeStateDTO, RecordDTO, DerivedRecordDTO, AttendanceEventResponse,
              RecognizeRequest, SummaryDTO, AuditEntryDTO
  Scenarios:  ScenarioDTO, LoadScenarioRequest
  Errors:     ErrorResponse

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/payroll"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	HourlyRate string `json:"hourly_rate"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// CreateEmployeeRequest registers an employee with reference captures
// (base64 data URLs) for the recognizer.
type CreateEmployeeRequest struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Images     []string        `json:"images"`
}

// EmployeeStateDTO is where an employee's day sits in the protocol.
type EmployeeStateDTO struct {
	EmployeeID string `json:"employee_id"`
	Date       string `json:"date"`
	State      string `json:"state"`
}

// RecordDTO is a raw attendance record.
type RecordDTO struct {
	ID         string  `json:"id"`
	EmployeeID string  `json:"employee_id"`
	Date       string  `json:"date"`
	CheckIn    *string `json:"check_in"`
	CheckOut   *string `json:"check_out"`
	State      string  `json:"state"`
}

// DerivedRecordDTO is one row of the attendance/payroll table.
type DerivedRecordDTO struct {
	RecordDTO
	EmployeeName  string `json:"employee_name"`
	HoursWorked   string `json:"hours_worked"`
	RegularHours  string `json:"regular_hours"`
	OvertimeHours string `json:"overtime_hours"`
	Status        string `json:"status"`
	Payroll       string `json:"payroll"`
}

// AttendanceEventResponse is returned by a successful check-in/check-out.
type AttendanceEventResponse struct {
	Record     RecordDTO `json:"record"`
	Employee   string    `json:"employee_name"`
	Event      string    `json:"event"`
	Message    string    `json:"message"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// RecognizeRequest carries one camera capture and the intended event.
type RecognizeRequest struct {
	Image string `json:"image"`
	Event string `json:"event"`
}

// SummaryDTO totals one employee's derived records.
type SummaryDTO struct {
	EmployeeID    string         `json:"employee_id"`
	EmployeeName  string         `json:"employee_name"`
	Days          int            `json:"days"`
	OpenDays      int            `json:"open_days"`
	HoursWorked   string         `json:"hours_worked"`
	OvertimeHours string         `json:"overtime_hours"`
	Payroll       string         `json:"payroll"`
	ByStatus      map[string]int `json:"by_status"`
}

// AuditEntryDTO is one attendance attempt.
type AuditEntryDTO struct {
	ID         string `json:"id"`
	At         string `json:"at"`
	EmployeeID string `json:"employee_id"`
	Event      string `json:"event"`
	Date       string `json:"date,omitempty"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEmployeeDTO(e attendance.EmployeeProfile) EmployeeDTO {
	dto := EmployeeDTO{
		ID:         e.ID,
		Name:       e.Name,
		HourlyRate: e.HourlyRate.String(),
	}
	if !e.CreatedAt.IsZero() {
		dto.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toRecordDTO(r attendance.AttendanceRecord) RecordDTO {
	return RecordDTO{
		ID:         r.ID,
		EmployeeID: r.EmployeeID,
		Date:       r.Date,
		CheckIn:    timeString(r.CheckIn),
		CheckOut:   timeString(r.CheckOut),
		State:      string(r.State()),
	}
}

func toDerivedDTO(d payroll.DerivedRecord) DerivedRecordDTO {
	return DerivedRecordDTO{
		RecordDTO:     toRecordDTO(d.AttendanceRecord),
		EmployeeName:  d.EmployeeName,
		HoursWorked:   d.HoursWorked.String(),
		RegularHours:  d.RegularHours.String(),
		OvertimeHours: d.OvertimeHours.String(),
		Status:        string(d.Status),
		Payroll:       d.Payroll.StringFixed(payroll.DisplayPlaces),
	}
}

func toSummaryDTO(s payroll.EmployeeSummary) SummaryDTO {
	byStatus := make(map[string]int, len(s.ByStatus))
	for k, v := range s.ByStatus {
		byStatus[string(k)] = v
	}
	return SummaryDTO{
		EmployeeID:    s.EmployeeID,
		EmployeeName:  s.EmployeeName,
		Days:          s.Days,
		OpenDays:      s.OpenDays,
		HoursWorked:   s.HoursWorked.String(),
		OvertimeHours: s.OvertimeHours.String(),
		Payroll:       s.Payroll.StringFixed(payroll.DisplayPlaces),
		ByStatus:      byStatus,
	}
}

func toAuditDTO(e attendance.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		At:         e.At.Format(time.RFC3339),
		EmployeeID: e.EmployeeID,
		Event:      string(e.Event),
		Date:       e.Date,
		Outcome:    e.Outcome,
		Detail:     e.Detail,
	}
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
