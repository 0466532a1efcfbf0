package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/identity-matcher/internal/web/handlers"
	"github.com/kozaktomas/identity-matcher/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	logger := s.logger

	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.deps.Health)
	configHandler := handlers.NewConfigHandler(s.config)
	catalogHandler := handlers.NewCatalogHandler(s.deps.Catalog, logger)
	verifyHandler := handlers.NewVerifyHandler(s.deps.Verifier, s.deps.References, s.jobManager, logger)
	recordsHandler := handlers.NewRecordsHandler(s.deps.Records, logger)
	registerHandler := handlers.NewRegisterHandler(s.deps.Registrar, s.deps.Attempts, logger)
	identityHandler := handlers.NewIdentityHandler(s.deps.Identities, logger)

	// Health check and metrics (no auth required)
	s.router.Get("/api/v1/health", healthHandler.Get)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Get("/config", configHandler.Get)
		r.Get("/catalog", catalogHandler.List)
		r.Get("/identities/{address}", identityHandler.ByAddress)
		r.Get("/profiles/{id}/identity", identityHandler.ByProfile)

		// Verification jobs are addressed by id
		r.Get("/verify/{jobId}", verifyHandler.Status)
		r.Get("/verify/{jobId}/events", verifyHandler.Events)
		r.Delete("/verify/{jobId}", verifyHandler.Cancel)

		// Catalog administration
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.config.Web.AdminToken))
			r.Post("/catalog", catalogHandler.Add)
		})

		// Everything acting on behalf of a wallet
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireWallet())
			r.Post("/verify", verifyHandler.Start)
			r.Get("/records", recordsHandler.List)
			r.Post("/register", registerHandler.Register)
		})
	})
}
