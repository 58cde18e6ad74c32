package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/research-office/research-registry/internal/api"
	"github.com/research-office/research-registry/internal/config"
	"github.com/research-office/research-registry/internal/db"
	"github.com/research-office/research-registry/internal/metrics"
	"github.com/research-office/research-registry/internal/repository"
	"github.com/research-office/research-registry/internal/schema"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("starting research-registry service")

	overrides, err := schema.LoadOverrides(cfg.Import.SchemaOverridePath)
	if err != nil {
		slog.Error("failed to load schema overrides", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Upload.TempDir, 0o755); err != nil {
		slog.Error("failed to create upload temp dir", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.ConnectWithRetry(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if n, err := repository.NewIdempotencyRepository(pool).CleanExpired(ctx); err != nil {
		slog.Warn("failed to clean expired idempotency keys", "error", err)
	} else if n > 0 {
		slog.Info("cleaned expired idempotency keys", "count", n)
	}

	registry, importMetrics := metrics.NewRegistry()

	deps := api.PostgresDeps(pool)
	deps.Overrides = overrides
	deps.Registry = registry
	deps.Observer = importMetrics
	deps.Logger = logger

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      api.NewRouter(cfg, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("server listening", "port", cfg.Server.Port, "dev_tokens", cfg.Server.DevTokens)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server exited")
}
