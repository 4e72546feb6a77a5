package api

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
	"github.com/warp/attendance-engine/payroll"
	"github.com/warp/attendance-engine/report"
)

func newTestScheduler(t *testing.T, dir string) (*ExportScheduler, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	es := NewExportScheduler(mem, payroll.NewEngine(), dir)
	es.Location = time.UTC
	es.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return es, mem
}

func TestExportScheduler_RunOnce(t *testing.T) {
	// GIVEN: one complete shift
	dir := filepath.Join(t.TempDir(), "exports")
	es, mem := newTestScheduler(t, dir)
	ts := &testServer{mem: mem}
	ts.addEmployee(t, "emp-1", "Asha", 100)

	m := attendance.NewMachine(mem, time.UTC)
	in := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	_, err := m.Apply(context.Background(), "emp-1", attendance.EventCheckIn, in)
	require.NoError(t, err)
	_, err = m.Apply(context.Background(), "emp-1", attendance.EventCheckOut, in.Add(8*time.Hour))
	require.NoError(t, err)

	// WHEN
	path, rows, err := es.RunOnce(context.Background())

	// THEN
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, report.Filename), path)
	assert.Equal(t, 1, rows)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(body), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "emp-1,Asha,2025-03-10,9:00:00 AM,5:00:00 PM,8,Present,800.00", lines[1])

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExportScheduler_StartStop(t *testing.T) {
	dir := t.TempDir()
	es, _ := newTestScheduler(t, dir)
	es.Interval = time.Hour

	es.Start()
	es.Start() // second start is a no-op

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, report.Filename))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "the first export runs on start")

	es.Stop()
	es.Stop()
}

func TestExportScheduler_Disabled(t *testing.T) {
	es, _ := newTestScheduler(t, "")

	assert.False(t, es.Enabled())
	es.Start()
	es.Stop()
}
