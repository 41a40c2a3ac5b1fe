// Package api provides the HTTP control surface for the mirror service.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/meshforge/cadmirror/internal/api/handlers"
	"github.com/meshforge/cadmirror/internal/api/health"
	"github.com/meshforge/cadmirror/internal/api/middleware"
	"github.com/meshforge/cadmirror/internal/store"
	syncengine "github.com/meshforge/cadmirror/internal/sync"
	"github.com/meshforge/cadmirror/pkg/config"
	"github.com/meshforge/cadmirror/pkg/logger"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	store         store.Store
	runner        *syncengine.Runner
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, st store.Store, runner *syncengine.Runner, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		store:  st,
		runner: runner,
		config: cfg,
		logger: log,
	}

	s.healthChecker = health.NewChecker(st, Version)
	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(&logger.Logger{Logger: s.logger}))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// Health check endpoint (no auth required)
	r.Get("/health", s.healthChecker.Handler())

	r.Route("/v1", func(r chi.Router) {
		authMiddleware := middleware.NewAuthMiddleware(s.config.APITokenSecret, s.logger)
		r.Use(authMiddleware.Authenticate)

		syncHandler := handlers.NewSyncHandler(s.runner, s.store, s.logger)
		r.Route("/sync", func(r chi.Router) {
			r.Post("/full", syncHandler.TriggerFull)
			r.Post("/{resource}", syncHandler.Trigger)

			r.Route("/runs", func(r chi.Router) {
				r.Get("/", syncHandler.ListRuns)
				r.Get("/{runID}", syncHandler.GetRun)
				r.Post("/{runID}/cancel", syncHandler.CancelRun)
			})

			logsHandler := handlers.NewLogsHandler(s.store, s.logger)
			r.Get("/logs", logsHandler.List)
		})

		mirrorHandler := handlers.NewMirrorHandler(s.store, s.logger)
		r.Get("/mirror/{resource}", mirrorHandler.List)

		statsHandler := handlers.NewStatsHandler(s.store, s.logger)
		r.Get("/stats", statsHandler.Get)
	})

	s.router = r
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
