/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. CORS:        Cross-origin requests for the kiosk/admin frontend
  2. RequestLog:  httplog (slog, ECS schema)
  3. RequestID:   Unique ID per request for tracing
  4. CleanPath:   Normalises double slashes
  5. Recoverer:   Panic recovery (500 instead of crash)
  6. Heartbeat:   GET /ping for load balancers

ROUTE GROUPS:
  /api/employees/*   Employee registration and lookup
  /api/attendance/*  Events, derived views, exports
  /api/audit         Attempt log
  /api/scenarios/*   Demo datasets (off in production)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

// RouterOptions configures cross-cutting middleware.
type RouterOptions struct {
	AllowedOrigins []string
	// RequestLogger receives one line per request. nil disables request
	// logging.
	RequestLogger *slog.Logger
	// DisableScenarios leaves the demo dataset routes unmounted. Loading a
	// scenario wipes the store.
	DisableScenarios bool
}

// DefaultAllowedOrigins covers the local frontend dev servers.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewLogger builds the JSON slog logger used for request and app logs.
func NewLogger(w io.Writer, level slog.Level, env string) *slog.Logger {
	logFormat := httplog.SchemaECS.Concise(false)
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "attendance-engine"),
		slog.String("env", env),
	)
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if opts.RequestLogger != nil {
		r.Use(httplog.RequestLogger(opts.RequestLogger, &httplog.Options{
			Level:  slog.LevelInfo,
			Schema: httplog.SchemaECS,
		}))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.CleanPath)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
		})

		// Attendance routes
		r.Route("/attendance", func(r chi.Router) {
			r.Get("/", h.ListAttendance)
			r.Get("/summary", h.Summary)
			r.Get("/export.csv", h.ExportCSV)
			r.Get("/export.xlsx", h.ExportXLSX)
			r.Post("/recognize", h.Recognize)
			r.Get("/{employeeID}/state", h.EmployeeState)
			r.Post("/{employeeID}/{event}", h.ApplyEvent)
		})

		r.Get("/audit", h.ListAudit)

		// Scenario routes
		if !opts.DisableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found", nil)
	})

	return r
}
