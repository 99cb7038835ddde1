// Command api is the PlayBuddy Notify API server.
//
// Usage:
//
//	playbuddy-notify-api
//	API_PORT=8080 playbuddy-notify-api

// @title PlayBuddy Notify API
// @version 1.0.0
// @description Notification eligibility, scheduling, and history API for the PlayBuddy events platform.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name PlayBuddy
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/playbuddy/playbuddy-notify/internal/api"
	"github.com/playbuddy/playbuddy-notify/internal/cache"
	"github.com/playbuddy/playbuddy-notify/internal/config"
	"github.com/playbuddy/playbuddy-notify/internal/db"
	"github.com/playbuddy/playbuddy-notify/internal/kv"
	"github.com/playbuddy/playbuddy-notify/internal/maintenance"
	"github.com/playbuddy/playbuddy-notify/internal/notify"
	"github.com/playbuddy/playbuddy-notify/internal/token"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Persisted state store
	var store kv.Store
	var pool *db.Pool
	if cfg.KVBackend == config.KVBackendPostgres {
		logger.Info("Connecting to database...")
		pool, err = db.New(ctx, cfg)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = kv.NewPostgres(pool.Pool)
		logger.Info("Database connected",
			"min_conns", cfg.DBPoolMinConns,
			"max_conns", cfg.DBPoolMaxConns)
	} else {
		store = kv.NewMemory()
		logger.Info("Using in-memory state store (no DATABASE_URL)")
	}

	// Platform notification boundary
	notifier := notify.NewLogNotifier(logger, cfg.AndroidChannels)

	// Schedulers
	scheduler := notify.NewScheduler(store, notifier, logger)
	discover := notify.NewDiscoverScheduler(store, notifier, logger)

	// Backend push-token client
	tokens := token.NewClient(cfg.BackendAPIURL, store, logger)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Start maintenance sweeps (history reconciliation, badge refresh)
	go maintenance.Start(ctx, scheduler, notifier, maintenance.Config{
		SweepInterval: cfg.MaintenanceInterval,
	}, logger)

	// Create router
	router := api.NewRouter(api.Deps{
		Scheduler: scheduler,
		Discover:  discover,
		Cache:     appCache,
		Config:    cfg,
		Pool:      pool,
		Tokens:    tokens,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting PlayBuddy Notify API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
