// Package api exposes the HTTP surface: scoring, review actions,
// configuration management and graph inspection.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openrisk-labs/kite/internal/cache"
	"github.com/openrisk-labs/kite/internal/domain"
	"github.com/openrisk-labs/kite/internal/graph"
	"github.com/openrisk-labs/kite/internal/rules"
	"github.com/openrisk-labs/kite/internal/scoring"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(
	cfg domain.ServerConfig,
	repo domain.Repository,
	configs *cache.ConfigCache,
	bus domain.EventBus,
	scorer *scoring.Service,
	scripts *rules.ScriptEngine,
	analyzer *graph.Analyzer,
	version string,
) *Server {
	handler := NewHandler(repo, configs, bus, scorer, scripts, analyzer, version)
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

		// Transaction scoring
		r.Post("/score", handler.Score)

		// Analyses and review actions
		r.Get("/analyses/{id}", handler.GetAnalysis)
		r.Post("/analyses/{id}/review", handler.ReviewAnalysis)

		// Transaction retrieval
		r.Get("/transactions/{id}", handler.GetTransaction)
		r.Get("/transactions/{id}/analysis", handler.GetTransactionAnalysis)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.SaveRule)
		r.Post("/rules/reload", handler.ReloadConfig)

		// Rule group management
		r.Get("/groups", handler.ListRuleGroups)
		r.Get("/groups/{id}", handler.GetRuleGroup)
		r.Post("/groups", handler.SaveRuleGroup)

		// Watchlist management
		r.Get("/watchlists", handler.ListWatchlists)
		r.Get("/watchlists/{id}", handler.GetWatchlist)
		r.Post("/watchlists", handler.SaveWatchlist)

		// Tenant policy
		r.Get("/policy", handler.GetPolicy)
		r.Put("/policy", handler.SavePolicy)

		// Relationship graph
		r.Get("/graph/summary", handler.GraphSummary)
		r.Get("/graph/{customerId}", handler.GetGraph)
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
