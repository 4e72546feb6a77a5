package recognition

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// EmployeeLister is the slice of the store the mock needs.
type EmployeeLister interface {
	ListEmployees(ctx context.Context) ([]attendance.EmployeeProfile, error)
}

// Mock stands in for a real face-recognition service. It ignores the image
// and picks a registered employee at random with a confidence in [0.9, 1.0).
type Mock struct {
	Employees EmployeeLister
	Latency   time.Duration

	mu       sync.Mutex
	rng      *rand.Rand
	enrolled map[string]int
}

// NewMock returns a mock seeded from the clock.
func NewMock(employees EmployeeLister) *Mock {
	return NewSeededMock(employees, uint64(time.Now().UnixNano()))
}

// NewSeededMock returns a mock whose picks are reproducible.
func NewSeededMock(employees EmployeeLister, seed uint64) *Mock {
	return &Mock{
		Employees: employees,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		enrolled:  make(map[string]int),
	}
}

func (m *Mock) Recognize(ctx context.Context, image []byte) (*Match, error) {
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	employees, err := m.Employees.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	if len(employees) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	pick := employees[m.rng.IntN(len(employees))]
	confidence := 0.9 + m.rng.Float64()*0.1
	m.mu.Unlock()

	return &Match{EmployeeID: pick.ID, Confidence: confidence}, nil
}

// Enroll records how many reference images were supplied. The mock does
// not look at them.
func (m *Mock) Enroll(_ context.Context, employeeID string, images [][]byte) error {
	if err := CheckReferences(images); err != nil {
		return err
	}
	m.mu.Lock()
	m.enrolled[employeeID] = len(images)
	m.mu.Unlock()
	return nil
}

// Enrolled returns the number of reference images seen for an employee.
func (m *Mock) Enrolled(employeeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enrolled[employeeID]
}

// Fixed always returns the same match. Useful for driving the gate in tests.
type Fixed struct {
	Match *Match
	Err   error
}

func (f Fixed) Recognize(context.Context, []byte) (*Match, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Match == nil {
		return nil, nil
	}
	m := *f.Match
	return &m, nil
}
