package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"spesa/internal/core"
	applog "spesa/internal/log"
	"spesa/internal/middleware/ratelimit"
	"spesa/internal/middleware/security"
	"spesa/internal/middleware/trace"
	"spesa/internal/services"
	"spesa/internal/store"
)

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Store     *store.Store
	Expenses  *services.ExpenseService
	Dashboard *services.DashboardService
	Backup    *services.BackupService

	// Ready probes the storage backend; nil means always ready.
	Ready func(ctx context.Context) error

	RateLimitPerMinute int
	Logger             *applog.Logger
}

type Server struct {
	http.Server

	store     *store.Store
	expenses  *services.ExpenseService
	dashboard *services.DashboardService
	backup    *services.BackupService
	ready     func(ctx context.Context) error

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	startedAt    time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.Config{Component: applog.ComponentHTTP, Handler: slog.Default().Handler()})
	}

	detector := security.NewDetector()
	s := &Server{
		store:     deps.Store,
		expenses:  deps.Expenses,
		dashboard: deps.Dashboard,
		backup:    deps.Backup,
		ready:     deps.Ready,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector:  detector,
		tracer:    trace.NewMiddleware(detector.ExtractClientIP),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mutating := s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	})
	limited := func(h http.HandlerFunc) http.Handler { return mutating(h) }

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.Handle("POST /api/expenses", limited(s.handleCreateExpense))
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	mux.Handle("PUT /api/expenses/{id}", limited(s.handleUpdateExpense))
	mux.Handle("DELETE /api/expenses/{id}", limited(s.handleDeleteExpense))

	mux.HandleFunc("GET /api/filters", s.handleGetFilters)
	mux.HandleFunc("PATCH /api/filters", s.handlePatchFilters)
	mux.HandleFunc("DELETE /api/filters", s.handleResetFilters)

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.Handle("POST /api/import", limited(s.handleImport))
	mux.Handle("POST /api/reset", limited(s.handleReset))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no such route").Write(w)
	})

	var handler http.Handler = mux
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = applog.Middleware(logger, trace.FromRequest)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) today() core.Date {
	return s.store.Today()
}

// Shutdown stops background goroutines and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		m := s.tracer.GetMetrics()
		slog.InfoContext(ctx, "HTTP server shutting down",
			"component", "http",
			"total_requests", m.TotalRequests,
			"avg_response_time", m.AverageResponseTime,
			"rate_limited", s.limiter.Rejected(),
			"suspicious", s.detector.SuspiciousRequests())
		err = s.Server.Shutdown(ctx)
	})
	return err
}
