/*
handlers.go - HTTP API handlers for the attendance and payroll engine

PURPOSE:
  Exposes the attendance state machine, payroll engine and exports via
  REST. Handles HTTP request/response, JSON serialization, and delegates
  to domain logic.

ENDPOINTS:
  Employees:
    GET    /api/employees                        List profiles
    POST   /api/employees                        Register a profile
    GET    /api/employees/{id}                   Get one profile

  Attendance:
    POST   /api/attendance/{employeeID}/{event}  check-in | check-out
    POST   /api/attendance/recognize             Capture -> gate -> event
    GET    /api/attendance/{employeeID}/state    Today's protocol state
    GET    /api/attendance                       Derived records (payroll view)
                                                 ?employee_id= ?date=YYYY-MM-DD
    GET    /api/attendance/summary               Per-employee totals
    GET    /api/attendance/export.csv            CSV download
    GET    /api/attendance/export.xlsx           Workbook download
    GET    /api/audit                            Attempt log

  Scenarios:
    GET    /api/scenarios                        List demo datasets
    GET    /api/scenarios/current                Currently loaded dataset
    POST   /api/scenarios/load                   Reset and load a dataset
    (scenario routes are not mounted in production)

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (machine, engine, report)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Domain errors map to status codes in statusFor:
  - 400: Invalid event, invalid body, bad image data, too few references
  - 404: Unknown employee
  - 409: Protocol violations, lost races, duplicate registration
  - 422: Recognition refused the capture
  - 500: Everything else
  Body: {"error", "code", "details"}; code is the stable error kind.

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo dataset loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/payroll"
	"github.com/warp/attendance-engine/recognition"
	"github.com/warp/attendance-engine/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter is implemented by stores that can wipe themselves for demos.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      attendance.Repository
	Audit      attendance.AuditLog // nil when the store keeps no audit log
	Machine    *attendance.Machine
	Engine     *payroll.Engine
	Recognizer recognition.Recognizer
	Gate       recognition.Gate
	Location   *time.Location
	Clock      attendance.Clock
	Logger     *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires a handler around store. Days are partitioned in loc.
// The mock recognizer is used until Recognizer is replaced.
func NewHandler(store attendance.Repository, loc *time.Location, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}

	machine := attendance.NewMachine(store, loc)
	machine.Logger = logger

	h := &Handler{
		Store:      store,
		Machine:    machine,
		Engine:     payroll.NewEngine(),
		Recognizer: recognition.NewMock(store),
		Gate:       recognition.NewGate(recognition.DefaultThreshold),
		Location:   loc,
		Clock:      attendance.SystemClock,
		Logger:     logger,
	}
	if audit, ok := store.(attendance.AuditLog); ok {
		h.Audit = audit
		machine.Audit = audit
	}
	return h
}

func (h *Handler) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock()
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeDomainError(w, "Employee not found", attendance.ErrUnknownEmployee)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// CreateEmployee registers a new employee and enrolls their reference
// images with the recognizer.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	profile := attendance.EmployeeProfile{
		ID:         req.ID,
		Name:       req.Name,
		HourlyRate: req.HourlyRate,
	}
	if err := attendance.ValidateProfile(profile); err != nil {
		writeDomainError(w, "id, name and a non-negative hourly_rate are required", err)
		return
	}

	images, err := recognition.DecodeImages(req.Images)
	if err != nil {
		writeDomainError(w, "Invalid reference image", err)
		return
	}
	if err := recognition.CheckReferences(images); err != nil {
		writeDomainError(w, "Capture at least 3 reference photos", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.SaveEmployee(ctx, profile); err != nil {
		writeDomainError(w, "Failed to create employee", err)
		return
	}

	if enroller, ok := h.Recognizer.(recognition.Enroller); ok {
		if err := enroller.Enroll(ctx, profile.ID, images); err != nil {
			h.Logger.Error("failed to enroll reference images", "employee_id", profile.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "Employee saved but enrollment failed", err)
			return
		}
	}

	saved, err := h.Store.GetEmployee(ctx, profile.ID)
	if err != nil || saved == nil {
		saved = &profile
	}
	h.Logger.Info("employee registered", "employee_id", profile.ID, "references", len(images))
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*saved))
}

// =============================================================================
// ATTENDANCE EVENTS
// =============================================================================

// ApplyEvent records a check-in or check-out for an employee.
// POST /api/attendance/{employeeID}/{event}
func (h *Handler) ApplyEvent(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	event, err := attendance.ParseEventType(chi.URLParam(r, "event"))
	if err != nil {
		writeDomainError(w, "Event must be check-in or check-out", err)
		return
	}

	resp, err := h.apply(r.Context(), employeeID, event)
	if err != nil {
		writeDomainError(w, "Attendance event rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Recognize identifies the employee in a capture and applies the event.
// POST /api/attendance/recognize
func (h *Handler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	event, err := attendance.ParseEventType(req.Event)
	if err != nil {
		writeDomainError(w, "Event must be check-in or check-out", err)
		return
	}
	image, err := recognition.DecodeImage(req.Image)
	if err != nil {
		writeDomainError(w, "Invalid image", err)
		return
	}

	ctx := r.Context()
	match, err := h.Recognizer.Recognize(ctx, image)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Recognition service failed", err)
		return
	}
	employeeID, err := h.Gate.Check(match)
	if err != nil {
		h.Logger.Info("recognition refused", "error", err)
		writeDomainError(w, "Face not recognized. Please try again.", err)
		return
	}

	resp, err := h.apply(ctx, employeeID, event)
	if err != nil {
		writeDomainError(w, "Attendance event rejected", err)
		return
	}
	resp.Confidence = &match.Confidence
	writeJSON(w, http.StatusOK, resp)
}

// apply resolves the employee, then runs the state machine. Unknown
// employees are rejected here; the machine itself does not look up profiles.
func (h *Handler) apply(ctx context.Context, employeeID string, event attendance.EventType) (*AttendanceEventResponse, error) {
	emp, err := h.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, &attendance.TransitionError{
			EmployeeID: employeeID, Event: event, Err: attendance.ErrUnknownEmployee,
		}
	}

	now := h.now()
	rec, err := h.Machine.Apply(ctx, employeeID, event, now)
	if err != nil {
		return nil, err
	}

	verb := "in"
	if event == attendance.EventCheckOut {
		verb = "out"
	}
	return &AttendanceEventResponse{
		Record:   toRecordDTO(rec),
		Employee: emp.Name,
		Event:    string(event),
		Message: fmt.Sprintf("Welcome, %s! You've successfully checked %s at %s.",
			emp.Name, verb, now.In(h.Location).Format(report.DefaultTimeLayout)),
	}, nil
}

// EmployeeState reports the protocol state of the employee's record for
// today in the handler's location.
// GET /api/attendance/{employeeID}/state
func (h *Handler) EmployeeState(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	ctx := r.Context()

	emp, err := h.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeDomainError(w, "Employee not found", attendance.ErrUnknownEmployee)
		return
	}

	now := h.now()
	state, err := h.Machine.State(ctx, employeeID, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read attendance state", err)
		return
	}
	writeJSON(w, http.StatusOK, EmployeeStateDTO{
		EmployeeID: employeeID,
		Date:       attendance.LocalDate(now, h.Location),
		State:      string(state),
	})
}

// =============================================================================
// DERIVED VIEWS & EXPORTS
// =============================================================================

// ListAttendance returns derived records, most recent date first.
// Optional ?employee_id= and ?date= narrow the list.
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := attendance.ParseDate(date); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
			return
		}
	}

	derived, err := h.Engine.DeriveAll(r.Context(), h.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to derive attendance", err)
		return
	}

	employeeID := r.URL.Query().Get("employee_id")
	dtos := make([]DerivedRecordDTO, 0, len(derived))
	for _, d := range derived {
		if employeeID != "" && d.EmployeeID != employeeID {
			continue
		}
		if date != "" && d.Date != date {
			continue
		}
		dtos = append(dtos, toDerivedDTO(d))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Summary returns per-employee totals.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	derived, err := h.Engine.DeriveAll(r.Context(), h.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to derive attendance", err)
		return
	}

	sums := payroll.Summarize(derived)
	dtos := make([]SummaryDTO, len(sums))
	for i, s := range sums {
		dtos[i] = toSummaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ExportCSV streams the attendance/payroll table as a CSV download.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	derived, err := h.Engine.DeriveAll(r.Context(), h.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to derive attendance", err)
		return
	}

	body := report.ToCSV(derived, report.Options{Location: h.Location})
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+report.Filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// ExportXLSX returns the same table as a workbook.
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	derived, err := h.Engine.DeriveAll(r.Context(), h.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to derive attendance", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+report.XLSXFilename)
	if err := report.WriteXLSX(w, derived, report.Options{Location: h.Location}); err != nil {
		// Headers are gone by now; all we can do is log.
		h.Logger.Error("failed to write xlsx export", "error", err)
	}
}

// ListAudit returns attendance attempts, newest first.
// Query: employee_id, limit (default 100).
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeJSON(w, http.StatusOK, []AuditEntryDTO{})
		return
	}

	filter := attendance.AuditFilter{
		EmployeeID: r.URL.Query().Get("employee_id"),
		Limit:      100,
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		filter.Limit = n
	}

	entries, err := h.Audit.ListAudit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list audit log", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case recognition.IsRecognitionError(err):
		return http.StatusUnprocessableEntity
	case attendance.IsNotFound(err):
		return http.StatusNotFound
	case attendance.IsConflict(err):
		return http.StatusConflict
	case attendance.IsClientError(err),
		errors.Is(err, recognition.ErrInvalidImage),
		errors.Is(err, recognition.ErrNotEnoughReferences),
		errors.Is(err, recognition.ErrTooManyReferences):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the stable machine-readable kind of err.
func errorCode(err error) string {
	switch {
	case errors.Is(err, recognition.ErrRecognitionFailed):
		return "recognition_failed"
	case errors.Is(err, recognition.ErrBelowThreshold):
		return "below_threshold"
	case errors.Is(err, recognition.ErrInvalidConfidence):
		return "invalid_confidence"
	case errors.Is(err, recognition.ErrInvalidImage):
		return "invalid_image"
	case errors.Is(err, recognition.ErrNotEnoughReferences), errors.Is(err, recognition.ErrTooManyReferences):
		return "invalid_references"
	default:
		return attendance.Kind(err)
	}
}

func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{
		Error:   message,
		Code:    errorCode(err),
		Details: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
