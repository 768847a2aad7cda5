// Kestrel - Transaction charge calculation for banking workloads.
// Copyright (c) 2025 opensource.finance
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

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/calc"
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/charge"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/period"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("KESTREL_ENV") == "production" {
		cfg = domain.ProductionConfig()
	}
	if os.Getenv("KESTREL_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}

	setupLogger(cfg.Logging)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Load the active rule catalog from the database. All rules are
	// configured via POST /rules - no hardcoded defaults.
	cat := catalog.New(repo, cacheImpl)
	if err := cat.Reload(ctx); err != nil {
		slog.Error("failed to load rule catalog", "error", err)
		os.Exit(1)
	}
	if cat.RulesCount() == 0 {
		slog.Info("no active rules in database - configure via POST /rules API")
	}
	slog.Info("rule catalog initialized", "rules_count", cat.RulesCount())

	// Initialize the charge evaluator: CEL matcher, fee strategy
	// registry, period counter backed by persisted transactions.
	matcher, err := charge.NewMatcher()
	if err != nil {
		slog.Error("failed to initialize rule matcher", "error", err)
		os.Exit(1)
	}
	evaluator := charge.NewEvaluator(matcher, charge.NewRegistry(), period.NewCounter(repo), repo)
	slog.Info("charge evaluator initialized")

	// Initialize calculation service
	service := calc.NewService(cat, repo, evaluator, repo, repo, cacheImpl, busImpl)

	// Initialize async batch worker
	var batchWorker *worker.Worker
	if os.Getenv("KESTREL_ASYNC_WORKER") != "false" {
		batchWorker = worker.NewWorker(busImpl, service)
		if err := batchWorker.Start(); err != nil {
			slog.Error("failed to start batch worker", "error", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, service, cat, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop batch worker first
	if batchWorker != nil {
		if err := batchWorker.Stop(); err != nil {
			slog.Error("failed to stop batch worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║     Transaction Charge Engine             ║")
	fmt.Println("  ║      Every charge accounted for.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /charges/calculate           - Calculate charges for a transaction")
	fmt.Println("    POST /charges/bulk                - Calculate a batch (sync or async)")
	fmt.Println("    GET  /transactions/{id}           - Get transaction by ID")
	fmt.Println("    GET  /transactions/{id}/charges   - Get charge line items")
	fmt.Println("    GET  /rules                       - List rules by status")
	fmt.Println("    POST /rules                       - Create a rule (DRAFT)")
	fmt.Println("    POST /rules/{id}/approve          - Approve a rule")
	fmt.Println("    POST /rules/{id}/deactivate       - Deactivate a rule")
	fmt.Println("    POST /rules/reload                - Hot-reload the rule catalog")
	fmt.Println("    POST /customers                   - Register a customer")
	fmt.Println("    GET  /customers/{code}            - Get customer by code")
	fmt.Println("    POST /customers/{code}/balances   - Record a balance snapshot")
	fmt.Println("    GET  /health                      - Health check")
	fmt.Println()
}
