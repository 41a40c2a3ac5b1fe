// Package main provides the entry point for the mirror API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meshforge/cadmirror/internal/api"
	"github.com/meshforge/cadmirror/internal/onshape"
	pgstore "github.com/meshforge/cadmirror/internal/store/postgres"
	syncengine "github.com/meshforge/cadmirror/internal/sync"
	"github.com/meshforge/cadmirror/pkg/config"
	"github.com/meshforge/cadmirror/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New(slog.LevelInfo, true)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize database store
	storeCfg := pgstore.DefaultConfig(cfg.DatabaseDSN)
	store, err := pgstore.NewPostgresStore(storeCfg, log.Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		log.Error("failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// Initialize the signed vendor client and verify credentials up front so
	// a bad key pair fails the process instead of every future run.
	creds := onshape.Credentials{
		AccessKey: cfg.Onshape.AccessKey,
		SecretKey: cfg.Onshape.SecretKey,
		BaseURL:   cfg.Onshape.BaseURL,
	}
	client, err := onshape.NewClient(creds, log.WithComponent("onshape").Logger)
	if err != nil {
		log.Error("failed to create vendor client", "error", err)
		os.Exit(1)
	}
	if _, err := client.CurrentUser(context.Background()); err != nil {
		log.Error("vendor credential check failed", "error", err)
		os.Exit(1)
	}
	log.Info("vendor credentials verified", "base_url", cfg.Onshape.BaseURL)

	// Assemble the sync engine
	gov := syncengine.NewGovernor(&syncengine.GovernorConfig{
		MaxInFlight: cfg.Sync.MaxInFlight,
		MaxAttempts: cfg.Sync.MaxAttempts,
		RetryBase:   cfg.Sync.RetryBase,
	}, log.WithComponent("governor").Logger)
	walker := syncengine.NewWalker(client, gov, cfg.Sync.PageSize, log.WithComponent("walker").Logger)
	reconciler := syncengine.NewReconciler(store.Mirror(), log.WithComponent("reconciler").Logger)
	orch := syncengine.NewOrchestrator(store, walker, reconciler, cfg.Sync.Workers, log.WithComponent("orchestrator").Logger)
	runner := syncengine.NewRunner(orch, cfg.Sync.MaxConcurrentRuns, log.WithComponent("runner").Logger)

	// Create the API server
	server := api.NewServer(cfg, store, runner, log.Logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	log.Info("starting API server",
		"host", cfg.APIHost,
		"port", cfg.APIPort,
	)

	if err := server.Start(ctx); err != nil {
		log.Error("server error", "error", err)
		runner.Stop()
		os.Exit(1)
	}

	// In-flight runs settle their terminal status before exit.
	runner.Stop()

	time.Sleep(100 * time.Millisecond)
	log.Info("server stopped")
}
