// Kite - Real-time transaction risk scoring.
// Copyright (c) 2025 openrisk-labs
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/openrisk-labs/kite/internal/api"
	"github.com/openrisk-labs/kite/internal/bus"
	"github.com/openrisk-labs/kite/internal/cache"
	"github.com/openrisk-labs/kite/internal/domain"
	"github.com/openrisk-labs/kite/internal/graph"
	"github.com/openrisk-labs/kite/internal/ml"
	"github.com/openrisk-labs/kite/internal/repository"
	"github.com/openrisk-labs/kite/internal/rules"
	"github.com/openrisk-labs/kite/internal/scoring"
	"github.com/openrisk-labs/kite/internal/worker"
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
	if os.Getenv("KITE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kite",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("KITE_CLUSTER") == "true" {
		cfg = domain.ClusterConfig()
		slog.Info("running in cluster mode")
	}
	applyEnvOverrides(cfg)

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

	// Configuration cache over the repository
	configs := cache.NewConfigCache(repo, cacheImpl, cfg.Cache.ConfigTTL)

	// Script rule engine (CEL)
	scripts, err := rules.NewScriptEngine()
	if err != nil {
		slog.Error("failed to initialize script engine", "error", err)
		os.Exit(1)
	}

	// Relationship analyzer
	analyzer := graph.NewAnalyzer()

	// Model adapter; no model loaded means rule-only scoring.
	adapter := ml.NewAdapter(nil, cfg.MLTimeout)

	// Scoring pipeline
	scorer := scoring.NewService(repo, configs, cacheImpl, busImpl, scripts, analyzer, adapter)
	slog.Info("scoring service initialized")

	// Async worker for bus-ingested transactions
	var asyncWorker *worker.Worker
	if os.Getenv("KITE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, scorer)

		var tenantIDs []string
		if envTenants := os.Getenv("KITE_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		}

		// Other nodes' config edits must drop our snapshots too.
		for _, tenantID := range tenantIDs {
			if _, err := configs.ListenInvalidations(ctx, busImpl, tenantID); err != nil {
				slog.Warn("config invalidation subscription failed",
					"tenant_id", tenantID, "error", err)
			}
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, configs, busImpl, scorer, scripts, analyzer, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kite is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		asyncWorker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kite shutdown complete")
}

// applyEnvOverrides maps KITE_* variables onto the loaded configuration.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KITE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KITE_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KITE_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KITE_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("KITE_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KITE_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("KITE_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KITE_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KITE_ML_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.MLTimeout = time.Duration(ms) * time.Millisecond
		}
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                    KITE")
	fmt.Println("       Transaction Risk Scoring Engine")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score                      - Score a transaction")
	fmt.Println("    GET  /analyses/{id}              - Get analysis by ID")
	fmt.Println("    POST /analyses/{id}/review       - Apply a review action")
	fmt.Println("    GET  /transactions/{id}          - Get transaction by ID")
	fmt.Println("    GET  /transactions/{id}/analysis - Latest analysis for a transaction")
	fmt.Println("    GET  /rules, /groups, /watchlists")
	fmt.Println("    POST /rules, /groups, /watchlists")
	fmt.Println("    POST /rules/reload               - Drop cached configuration")
	fmt.Println("    GET  /policy, PUT /policy        - Tenant policy")
	fmt.Println("    GET  /graph/{customerId}         - Relationship graph")
	fmt.Println("    GET  /graph/summary              - Top actors by fan-out/fan-in")
	fmt.Println("    GET  /health, /ready")
	fmt.Println()
}
