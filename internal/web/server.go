package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/identity-matcher/internal/config"
	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/health"
	"github.com/kozaktomas/identity-matcher/internal/verification"
	"github.com/kozaktomas/identity-matcher/internal/web/handlers"
	"github.com/kozaktomas/identity-matcher/internal/web/middleware"
)

const (
	jobRetention     = 30 * time.Minute
	jobPruneInterval = 5 * time.Minute
)

// Dependencies are the services the HTTP API is built on. Registrar and
// Identities are nil when the ledger is not configured.
type Dependencies struct {
	Verifier   handlers.Verifier
	Catalog    handlers.CatalogService
	References database.CatalogReader
	Records    database.RecordReader
	Attempts   *verification.Attempts
	Registrar  handlers.Registrar
	Identities handlers.IdentityReader
	Health     *health.Checker
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Dependencies
	router     *chi.Mux
	httpServer *http.Server
	jobManager *handlers.JobManager
	logger     *slog.Logger
	stop       chan struct{}
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Dependencies, port int, host string) *Server {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:     cfg,
		deps:       deps,
		router:     r,
		jobManager: handlers.NewJobManager(),
		logger:     logger,
		stop:       make(chan struct{}),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE and uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.pruneJobs()

	s.logger.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	close(s.stop)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// pruneJobs drops finished verification jobs once nobody can still poll them.
func (s *Server) pruneJobs() {
	ticker := time.NewTicker(jobPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.jobManager.PruneFinished(time.Now().Add(-jobRetention)); n > 0 {
				s.logger.Debug("pruned finished jobs", "count", n)
			}
		}
	}
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
