// FraudGuard - Real-time transaction fraud scoring.
// Copyright (c) 2026 fintechco
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fintechco/fraudguard/internal/api"
	"github.com/fintechco/fraudguard/internal/bus"
	"github.com/fintechco/fraudguard/internal/cache"
	"github.com/fintechco/fraudguard/internal/domain"
	"github.com/fintechco/fraudguard/internal/model"
	"github.com/fintechco/fraudguard/internal/repository"
	"github.com/fintechco/fraudguard/internal/risk"
	"github.com/fintechco/fraudguard/internal/rules"
	"github.com/fintechco/fraudguard/internal/validate"
	"github.com/fintechco/fraudguard/internal/velocity"
	"github.com/fintechco/fraudguard/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("FRAUDGUARD_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting fraudguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("FRAUDGUARD_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"velocity", cfg.Velocity.Backend,
		"model", cfg.Model.Mode,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize velocity tracker
	tracker, err := velocity.New(cfg.Velocity)
	if err != nil {
		slog.Error("failed to initialize velocity tracker", "error", err)
		os.Exit(1)
	}
	defer tracker.Close()
	slog.Info("velocity tracker initialized", "backend", cfg.Velocity.Backend)

	// Initialize engines
	ruleEngine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer ruleEngine.Close()
	slog.Info("rule engine initialized")

	riskEngine := risk.NewEngine(tracker)
	slog.Info("risk engine initialized")

	// Initialize model collaborator
	predictor, err := model.New(cfg.Model)
	if err != nil {
		slog.Error("failed to initialize model", "error", err)
		os.Exit(1)
	}
	if predictor != nil {
		defer predictor.Close()
	}
	trainer, _ := predictor.(model.Trainer)
	slog.Info("model initialized", "mode", cfg.Model.Mode, "trainable", trainer != nil)

	// Initialize analysis pipeline
	pipeline := worker.NewPipeline(ruleEngine, riskEngine, predictor, repo, cacheImpl, busImpl, cfg.Model.Timeout)

	// Initialize async worker
	asyncWorker := worker.NewWorker(pipeline, validate.New(), busImpl)
	if err := asyncWorker.Start(ctx); err != nil {
		slog.Error("failed to start async worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, pipeline, repo, cacheImpl, busImpl, ruleEngine, predictor, trainer, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fraudguard is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("fraudguard shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  FraudGuard - Real-time transaction fraud scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/transactions          - Analyze a transaction")
	fmt.Println("    POST /api/transactions/batch    - Analyze a batch")
	fmt.Println("    POST /api/transactions/validate - Validate without scoring")
	fmt.Println("    GET  /api/transactions          - List analyses")
	fmt.Println("    GET  /api/transactions/{id}     - Get analysis by ID")
	fmt.Println("    GET  /api/alerts                - List fraud alerts")
	fmt.Println("    GET  /api/stats                 - Risk distribution stats")
	fmt.Println("    GET  /api/rules                 - Custom rule info")
	fmt.Println("    POST /api/rules                 - Load a custom CEL rule")
	fmt.Println("    GET  /api/model/info            - Model state")
	fmt.Println("    POST /api/model/train           - Train the embedded model")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
