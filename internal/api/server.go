package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cediguard/cediguard/internal/domain"
	"github.com/cediguard/cediguard/internal/pipeline"
	"github.com/cediguard/cediguard/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, rateLimit domain.RateLimitConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, ruleEngine *rules.Engine, processor *pipeline.Processor, version string) *Server {
	handler := NewHandler(repo, cache, bus, ruleEngine, processor, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// SMS parsing and evaluation
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(cache, rateLimit))
			r.Post("/parse", handler.Parse)
			r.Post("/evaluate", handler.Evaluate)
		})

		// Record retrieval
		r.Get("/transactions/{id}", handler.GetTransaction)
		r.Get("/assessments/{id}", handler.GetAssessment)

		// Per-account configuration
		r.Get("/settings/{accountId}", handler.GetSettings)
		r.Put("/settings/{accountId}", handler.UpdateSettings)

		// Merchant lists ({kind} is "blocked" or "trusted")
		r.Get("/accounts/{accountId}/merchants/{kind}", handler.ListMerchants)
		r.Post("/accounts/{accountId}/merchants/{kind}", handler.AddMerchant)
		r.Delete("/accounts/{accountId}/merchants/{kind}/{merchant}", handler.RemoveMerchant)

		// Global blacklist
		r.Get("/blacklist", handler.ListBlacklist)
		r.Post("/blacklist", handler.AddToBlacklist)

		// Custom rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

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
