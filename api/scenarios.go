/*
scenarios.go - Demo datasets for testing and demonstrations

PURPOSE:
  Populates the store with realistic employees and shifts so the payroll
  table, exports and summaries have something to show.

AVAILABLE SCENARIOS:
  first-week:      Three employees, a week of mixed Present/Overtime/Half-day
  night-shift:     Shifts that end after midnight, plus one still open
  registered-only: Profiles without any attendance

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Register employees
 3. Replay shifts through the state machine, oldest first

  Shifts go through attendance.Machine, not straight into the store, so a
  scenario can never contain a record the protocol would reject. Dates are
  relative to "today" in the handler's location.

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "first-week"}

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - attendance/machine.go: Replays the shifts
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "first-week",
		Name:        "First Week",
		Description: "Three employees with a week of regular, overtime and half-day shifts",
	},
	{
		ID:          "night-shift",
		Name:        "Night Shift",
		Description: "Shifts crossing midnight and an employee who is still checked in",
	},
	{
		ID:          "registered-only",
		Name:        "Registered Only",
		Description: "Employees registered, no attendance yet",
	},
}

// shift is a demo check-in/check-out pair. A zero length leaves it open.
type shift struct {
	employeeID string
	daysAgo    int
	hour, min  int
	length     time.Duration
}

type scenarioData struct {
	employees []attendance.EmployeeProfile
	shifts    []shift
}

func employee(id, name, rate string) attendance.EmployeeProfile {
	return attendance.EmployeeProfile{ID: id, Name: name, HourlyRate: decimal.RequireFromString(rate)}
}

func scenarioFor(id string) (scenarioData, bool) {
	switch id {
	case "first-week":
		return scenarioData{
			employees: []attendance.EmployeeProfile{
				employee("EMP001", "Asha Rao", "100"),
				employee("EMP002", "Ravi Kumar", "50"),
				employee("EMP003", "Meera Nair", "75.50"),
			},
			shifts: []shift{
				{"EMP001", 5, 9, 0, 8 * time.Hour},
				{"EMP001", 4, 9, 0, 10 * time.Hour},
				{"EMP001", 3, 9, 15, 8*time.Hour + 30*time.Minute},
				{"EMP001", 2, 9, 0, 3*time.Hour + 30*time.Minute},
				{"EMP002", 5, 9, 0, 3*time.Hour + 30*time.Minute},
				{"EMP002", 4, 8, 45, 8 * time.Hour},
				{"EMP002", 3, 10, 0, 4 * time.Hour},
				{"EMP003", 4, 7, 30, 9*time.Hour + 45*time.Minute},
				{"EMP003", 2, 12, 0, 6 * time.Hour},
				{"EMP003", 1, 9, 0, 8 * time.Hour},
			},
		}, true
	case "night-shift":
		return scenarioData{
			employees: []attendance.EmployeeProfile{
				employee("EMP101", "Kiran Das", "60"),
				employee("EMP102", "Lena Fischer", "80"),
			},
			shifts: []shift{
				{"EMP101", 3, 21, 0, 5 * time.Hour},
				{"EMP101", 2, 22, 0, 9 * time.Hour},
				{"EMP101", 1, 20, 0, 0},
				{"EMP102", 2, 18, 0, 8 * time.Hour},
				{"EMP102", 1, 23, 30, 2 * time.Hour},
			},
		}, true
	case "registered-only":
		return scenarioData{
			employees: []attendance.EmployeeProfile{
				employee("EMP201", "Noah Smith", "40"),
				employee("EMP202", "Priya Shah", "55"),
				employee("EMP203", "Tomás García", "65"),
			},
		}, true
	}
	return scenarioData{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	data, ok := scenarioFor(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	resetter, ok := h.Store.(Resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	if err := h.loadScenario(ctx, data); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID,
		"employees", len(data.employees), "shifts", len(data.shifts))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, data scenarioData) error {
	for _, e := range data.employees {
		if err := h.Store.SaveEmployee(ctx, e); err != nil {
			return fmt.Errorf("save employee %s: %w", e.ID, err)
		}
	}

	// Seeding is not an attendance attempt, so it bypasses the audit log.
	seeder := attendance.NewMachine(h.Store, h.Location)
	seeder.Logger = h.Logger

	y, m, d := h.now().In(h.Location).Date()
	type event struct {
		employeeID string
		kind       attendance.EventType
		at         time.Time
	}
	var events []event
	for _, s := range data.shifts {
		in := time.Date(y, m, d-s.daysAgo, s.hour, s.min, 0, 0, h.Location)
		events = append(events, event{s.employeeID, attendance.EventCheckIn, in})
		if s.length > 0 {
			events = append(events, event{s.employeeID, attendance.EventCheckOut, in.Add(s.length)})
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].at.Before(events[j].at) })

	for _, ev := range events {
		if _, err := seeder.Apply(ctx, ev.employeeID, ev.kind, ev.at); err != nil {
			return fmt.Errorf("replay %s for %s at %s: %w", ev.kind, ev.employeeID, ev.at.Format(time.RFC3339), err)
		}
	}
	return nil
}
