/*
scheduler.go - Periodic attendance/payroll export

PURPOSE:
  Writes the CSV export to a directory on a fixed interval so payroll can
  pick it up without calling the API.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Derives from the store on every tick; nothing is cached
  - Writes to a temp file in Dir and renames it into place, so readers
    never see a half-written export
  - Failures are logged and retried on the next tick

CONFIGURATION:
  - Dir:      Target directory (EXPORT_DIR). Empty disables the scheduler.
  - Interval: How often to export (EXPORT_INTERVAL, default: 1 hour)

USAGE:
  scheduler := NewExportScheduler(store, engine, "/var/exports")
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ExportCSV endpoint (on-demand export)
  - report/csv.go: Rendering
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/warp/attendance-engine/payroll"
	"github.com/warp/attendance-engine/report"
)

// ExportScheduler handles automated CSV exports.
type ExportScheduler struct {
	Source   payroll.Source
	Engine   *payroll.Engine
	Dir      string
	Interval time.Duration
	Location *time.Location
	Logger   *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExportScheduler creates a new scheduler.
func NewExportScheduler(src payroll.Source, engine *payroll.Engine, dir string) *ExportScheduler {
	return &ExportScheduler{
		Source:   src,
		Engine:   engine,
		Dir:      dir,
		Interval: 1 * time.Hour,
		Logger:   slog.Default(),
	}
}

// Enabled reports whether there is somewhere to export to.
func (es *ExportScheduler) Enabled() bool {
	return es.Dir != ""
}

// Start begins the scheduler.
func (es *ExportScheduler) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled() {
		es.Logger.Info("export scheduler disabled, not starting")
		return
	}
	if es.ticker != nil {
		return
	}

	es.ticker = time.NewTicker(es.Interval)
	es.stop = make(chan struct{})
	es.wg.Add(1)

	go es.run(es.ticker, es.stop)

	es.Logger.Info("export scheduler started", "interval", es.Interval, "dir", es.Dir)
}

// Stop stops the scheduler and waits for an in-flight export.
func (es *ExportScheduler) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		es.ticker.Stop()
		close(es.stop)
		es.wg.Wait()
		es.ticker = nil
		es.Logger.Info("export scheduler stopped")
	}
}

func (es *ExportScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer es.wg.Done()

	// Run immediately on start
	es.exportAndLog()

	for {
		select {
		case <-ticker.C:
			es.exportAndLog()
		case <-stop:
			return
		}
	}
}

func (es *ExportScheduler) exportAndLog() {
	path, rows, err := es.RunOnce(context.Background())
	if err != nil {
		es.Logger.Error("scheduled export failed", "error", err)
		return
	}
	es.Logger.Info("scheduled export written", "path", path, "rows", rows)
}

// RunOnce derives the current records and writes them to Dir. It returns
// the final path and the number of data rows.
func (es *ExportScheduler) RunOnce(ctx context.Context) (string, int, error) {
	derived, err := es.Engine.DeriveAll(ctx, es.Source)
	if err != nil {
		return "", 0, err
	}

	if err := os.MkdirAll(es.Dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(es.Dir, ".export-*.csv")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	body := report.ToCSV(derived, report.Options{Location: es.Location})
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("close export: %w", err)
	}

	final := filepath.Join(es.Dir, report.Filename)
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", 0, fmt.Errorf("rename export: %w", err)
	}
	return final, len(derived), nil
}
