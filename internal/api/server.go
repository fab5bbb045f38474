// Package api exposes the HTTP surface of FraudGuard: transaction analysis,
// retrieval, alerts, stats and model management.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fintechco/fraudguard/internal/domain"
	"github.com/fintechco/fraudguard/internal/model"
	"github.com/fintechco/fraudguard/internal/rules"
	"github.com/fintechco/fraudguard/internal/worker"
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
	pipeline *worker.Pipeline,
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	ruleEngine *rules.Engine,
	predictor model.Predictor,
	trainer model.Trainer,
	version string,
) *Server {
	handler := NewHandler(pipeline, repo, cache, bus, ruleEngine, predictor, trainer, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route("/api", func(r chi.Router) {
		// Transaction analysis
		r.Post("/transactions", handler.AnalyzeTransaction)
		r.Post("/transactions/batch", handler.AnalyzeBatch)
		r.Post("/transactions/validate", handler.ValidateBatch)

		// Analysis retrieval
		r.Get("/transactions", handler.ListAnalyses)
		r.Get("/transactions/{id}", handler.GetAnalysis)

		// Alerts and reporting
		r.Get("/alerts", handler.ListAlerts)
		r.Get("/stats", handler.Stats)

		// Rule management
		r.Get("/rules", handler.RulesInfo)
		r.Post("/rules", handler.CreateRule)

		// Model management
		r.Get("/model/info", handler.ModelInfo)
		r.Post("/model/train", handler.TrainModel)
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
