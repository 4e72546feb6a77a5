// Package store provides in-memory attendance.Repository and
// attendance.AuditLog implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	records   map[string]attendance.AttendanceRecord // by record id
	employees map[string]attendance.EmployeeProfile
	audit     []attendance.AuditEntry
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		records:   make(map[string]attendance.AttendanceRecord),
		employees: make(map[string]attendance.EmployeeProfile),
		now:       time.Now,
	}
}

// =============================================================================
// ATTENDANCE RECORDS (attendance.Store)
// =============================================================================

func (m *Memory) Get(_ context.Context, employeeID, date string) (*attendance.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[attendance.RecordID(employeeID, date)]
	if !ok {
		return nil, nil
	}
	out := rec.Clone()
	return &out, nil
}

func (m *Memory) Latest(_ context.Context, employeeID string) (*attendance.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *attendance.AttendanceRecord
	for _, rec := range m.records {
		if rec.EmployeeID != employeeID {
			continue
		}
		if latest == nil || rec.Date > latest.Date {
			r := rec
			latest = &r
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := latest.Clone()
	return &out, nil
}

// Put applies the conditional write under the store lock.
func (m *Memory) Put(_ context.Context, rec attendance.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var existing *attendance.AttendanceRecord
	if cur, ok := m.records[rec.ID]; ok {
		existing = &cur
	}
	if err := attendance.CheckPut(existing, rec); err != nil {
		return err
	}
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *Memory) ListAll(_ context.Context) ([]attendance.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]attendance.AttendanceRecord, 0, len(m.records))
	for _, rec := range m.records {
		result = append(result, rec.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date > result[j].Date
		}
		return result[i].EmployeeID < result[j].EmployeeID
	})
	return result, nil
}

// =============================================================================
// EMPLOYEES (attendance.EmployeeStore)
// =============================================================================

func (m *Memory) GetEmployee(_ context.Context, id string) (*attendance.EmployeeProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	emp, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	return &emp, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]attendance.EmployeeProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]attendance.EmployeeProfile, 0, len(m.employees))
	for _, emp := range m.employees {
		result = append(result, emp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) SaveEmployee(_ context.Context, emp attendance.EmployeeProfile) error {
	if err := attendance.ValidateProfile(emp); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.employees[emp.ID]; ok {
		return attendance.ErrEmployeeExists
	}
	if emp.CreatedAt.IsZero() {
		emp.CreatedAt = m.now().UTC()
	}
	m.employees[emp.ID] = emp
	return nil
}

// =============================================================================
// AUDIT LOG (attendance.AuditLog)
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry attendance.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

// ListAudit returns entries newest first.
func (m *Memory) ListAudit(_ context.Context, filter attendance.AuditFilter) ([]attendance.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if filter.EmployeeID != "" && e.EmployeeID != filter.EmployeeID {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]attendance.AttendanceRecord)
	m.employees = make(map[string]attendance.EmployeeProfile)
	m.audit = nil
	return nil
}
