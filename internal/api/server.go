// Package api serves dataset validation, command previews, generation runs
// and their history over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/moagen/internal/auth"
	"github.com/mattjoyce/moagen/internal/dataset"
	"github.com/mattjoyce/moagen/internal/events"
	"github.com/mattjoyce/moagen/internal/generate"
	"github.com/mattjoyce/moagen/internal/ledger"
	"github.com/mattjoyce/moagen/internal/moa"
)

// RunStore reads run history. *ledger.Ledger satisfies it.
type RunStore interface {
	GetRun(ctx context.Context, runID string) (*ledger.Run, error)
	ListRuns(ctx context.Context, limit int) ([]ledger.Run, error)
	ListDatasets(ctx context.Context, runID string) ([]ledger.Dataset, error)
}

// Generator runs a batch of datasets. *generate.Orchestrator satisfies it.
type Generator interface {
	Run(ctx context.Context, specs []dataset.Spec) (*generate.Report, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is a single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
	// Tool and OutputDir are used to render command previews.
	Tool      moa.Tool
	OutputDir string
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	store     RunStore
	generator Generator
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// runCtx parents background runs; Start replaces it with its own context.
	runCtx  context.Context
	busy    chan struct{}
	running sync.WaitGroup
}

// New creates a new API server instance. store and generator may be nil, in
// which case the corresponding routes answer 503.
func New(config Config, store RunStore, generator Generator, hub *events.Hub, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(256)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		store:     store,
		generator: generator,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
		runCtx:    context.Background(),
		busy:      make(chan struct{}, 1),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.runCtx = ctx
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE and ?wait=true runs hold the connection
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", auth.Enabled(s.config.APIKey, s.config.Tokens))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.Wait()
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Wait blocks until background runs started through the API have finished.
func (s *Server) Wait() {
	s.running.Wait()
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeToolsRead)).Get("/generators", s.handleListGenerators)
		r.With(s.requireScopes(auth.ScopeToolsRead)).Post("/validate", s.handleValidate)
		r.With(s.requireScopes(auth.ScopeToolsRead)).Post("/command", s.handleCommand)
		r.With(s.requireScopes(auth.ScopeRunsRead)).Get("/runs", s.handleListRuns)
		r.With(s.requireScopes(auth.ScopeRunsRead)).Get("/runs/{runID}", s.handleGetRun)
		r.With(s.requireScopes(auth.ScopeRunsWrite)).Post("/runs", s.handleStartRun)
		r.With(s.requireScopes(auth.ScopeEventsRead)).Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
