// Command server serves the catalog API and runs imports on request.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/korhy/cookbook/internal/config"
	"github.com/korhy/cookbook/internal/core"
	"github.com/korhy/cookbook/internal/database"
	"github.com/korhy/cookbook/internal/logging"
	"github.com/korhy/cookbook/internal/metrics"
	"github.com/korhy/cookbook/internal/storage"
	"github.com/korhy/cookbook/internal/web"
)

func main() {
	// Overload lets .env win over inherited variables.
	envErr := godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireDatabase(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}
	logger.Info("configuration loaded",
		"addr", cfg.Server.Addr(),
		"data_dir", cfg.Import.DataDir,
		"recipe_format", cfg.Import.RecipeFormat,
		"require_api_key", cfg.Security.RequireAPIKey,
		"history_retention_days", cfg.History.RetentionDays,
	)

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := storage.New(pool, storage.WithLogger(logger))
	limiter := core.NewImportLimiter(1)
	server := web.NewServer(cfg, web.Deps{
		Store:    store,
		Catalog:  store,
		History:  store,
		Recorder: store,
		Limiter:  limiter,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Pinger:   pool,
		Logger:   logger,
	})

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go core.StartHistoryRetention(jobCtx, store, core.RetentionConfig{
		RetentionDays: cfg.History.RetentionDays,
		CheckInterval: cfg.History.CheckInterval,
	}, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if st := limiter.Status(); st.Active > 0 {
			logger.Info("waiting for import to complete", "started_at", st.StartedAt)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown did not complete in time", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		cancelJobs()
		pool.Close()
		os.Exit(1)
	}
	<-done
	logger.Info("server stopped")
}
