// Kestrel - Anti-fraud screening for money transfers.
// Copyright (c) 2026 opensource.finance
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

	"github.com/joho/godotenv"

	"github.com/opensource-finance/kestrel/internal/accountview"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/breaker"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/dispatch"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/evaluator"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/identity"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/upstream"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Local overrides from .env, ignored when absent
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.FromEnv()

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

	// Upstream gateways
	accountsGW := upstream.NewAccountsClient(cfg.Upstream)
	transfersGW := upstream.NewTransfersClient(cfg.Upstream)
	notificationsGW := upstream.NewNotificationsClient(cfg.Upstream)

	// Initialize Rule Engine
	engine, err := rules.NewEngine(cfg.Rules)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized",
		"lookback_months", engine.LookbackMonths(),
	)

	// Identity guard and existence resolver
	guard := identity.NewGuard()
	resolver := accountview.NewResolver(repo, accountsGW, logger)

	// History service over cache + transfers + durable backup
	historySvc := history.NewService(cacheImpl, repo, transfersGW, cfg.Cache.HistoryTTL, logger)

	// Breaker-guarded account blocker
	blockBreaker := breaker.New("block_account", cfg.Breaker)
	blocker := evaluator.NewBlocker(accountsGW, blockBreaker, logger)

	// Risk evaluator and alert lifecycle service
	eval := evaluator.New(guard, resolver, historySvc, engine, blocker,
		repo, cacheImpl, busImpl, cfg.Cache.DecisionTTL, logger)
	alerts := evaluator.NewAlertService(repo, guard, logger)

	// Notification dispatcher consumes confirmed-fraud events
	dispatcher := dispatch.New(busImpl, notificationsGW)
	if err := dispatcher.Start(); err != nil {
		slog.Error("failed to start notification dispatcher", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, eval, alerts, repo, cacheImpl, busImpl, Version)

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

	// Stop the dispatcher first so in-flight notifications drain
	if err := dispatcher.Stop(); err != nil {
		slog.Error("failed to stop notification dispatcher", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL - Anti-Fraud Transaction Screening")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /v1/fraud-alerts/check          - Screen a transfer")
	fmt.Println("    GET    /v1/accounts/{iban}/fraud-alerts - List alerts for an account")
	fmt.Println("    PUT    /v1/fraud-alerts/{id}           - Update an alert")
	fmt.Println("    DELETE /v1/fraud-alerts/{id}           - Delete an alert")
	fmt.Println("    GET    /health                          - Health check")
	fmt.Println("    GET    /metrics                         - Prometheus metrics")
	fmt.Println()
}
