// Package api provides the HTTP interface to the pattern detection and
// resilience scoring engine.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentic-finance/kestrel/internal/domain"
	"github.com/agentic-finance/kestrel/internal/memory"
	"github.com/agentic-finance/kestrel/internal/metrics"
	"github.com/agentic-finance/kestrel/internal/policy"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, store *memory.Store, policies *policy.Engine, repo domain.Repository, cache domain.Cache, version string) *Server {
	handler := NewHandler(store, policies, repo, cache, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(MetricsMiddleware)      // Prometheus request metrics
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health and observability endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Decision recording and feedback
	router.Post("/decisions", handler.RecordDecision)
	router.Post("/adaptations", handler.ReportAdaptation)
	router.Get("/adaptations", handler.ListAdaptations)

	// Memory reads
	router.Get("/status", handler.Status)
	router.Get("/memory", handler.Memory)
	router.Get("/patterns", handler.ListPatterns)
	router.Get("/signals", handler.ListSignals)
	router.Get("/profiles/{recipient}", handler.GetProfile)
	router.Get("/transactions/{id}", handler.GetTransaction)

	// Operator resolution actions
	router.Post("/signals/{id}/resolve", handler.ResolveSignal)
	router.Post("/patterns/{id}/resolve", handler.ResolvePattern)

	// Policy management
	router.Get("/policies", handler.ListPolicies)
	router.Get("/policies/{id}", handler.GetPolicy)
	router.Post("/policies", handler.CreatePolicy)
	router.Put("/policies/{id}", handler.UpdatePolicy)
	router.Delete("/policies/{id}", handler.DeletePolicy)
	router.Post("/policies/reload", handler.ReloadPolicies)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
