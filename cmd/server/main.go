/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance and payroll server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Build the JSON logger
  3. Open the store selected by STORE_DRIVER
  4. Create API handler with dependencies
  5. Start the export scheduler if EXPORT_DIR is set
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides APP_PORT)
  -store   sqlite | memory | mongodb (overrides STORE_DRIVER)
  -db      SQLite database path (overrides SQLITE_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the export scheduler
  4. Close the store
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/attendance.db"

  # Run without persistence
  ./server -store=memory

  # Run against MongoDB
  STORE_DRIVER=mongodb MONGODB_URI=mongodb://localhost:27017 ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/attendance"
	memstore "github.com/warp/attendance-engine/attendance/store"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/recognition"
	"github.com/warp/attendance-engine/store/mongodb"
	"github.com/warp/attendance-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.App.Port, "HTTP server port")
	driver := flag.String("store", cfg.Store.Driver, "Store driver: sqlite, memory or mongodb")
	dbPath := flag.String("db", cfg.Store.SQLitePath, "SQLite database path")
	flag.Parse()

	cfg.App.Port = *port
	cfg.Store.Driver = *driver
	cfg.Store.SQLitePath = *dbPath
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := api.NewLogger(os.Stdout, cfg.SlogLevel(), cfg.App.Env)
	slog.SetDefault(logger)

	// Initialize store
	repo, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to initialize store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Initialize handler
	handler := api.NewHandler(repo, cfg.Attendance.Location, logger)
	handler.Gate = recognition.NewGate(cfg.Attendance.RecognitionThreshold)
	handler.Recognizer = recognition.NewMock(repo)

	// Periodic export
	scheduler := api.NewExportScheduler(repo, handler.Engine, cfg.Export.Dir)
	scheduler.Interval = cfg.Export.Interval
	scheduler.Location = cfg.Attendance.Location
	scheduler.Logger = logger
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins:   cfg.App.CORSOrigins,
		RequestLogger:    logger,
		DisableScenarios: cfg.IsProduction(),
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			"addr", server.Addr, "store", cfg.Store.Driver, "timezone", cfg.Attendance.Location.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

// openStore returns the configured repository and a function that releases it.
func openStore(cfg *config.Config) (attendance.Repository, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memstore.NewMemory(), func() {}, nil

	case config.DriverMongoDB:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := mongodb.New(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Close(ctx); err != nil {
				slog.Error("failed to disconnect from mongodb", "error", err)
			}
		}, nil

	default:
		s, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		}, nil
	}
}
