package core

// scheduler.go runs background maintenance for the import history.
//
// Every stage of every live run adds a row to the history. The retention job
// deletes rows older than the configured window. It runs once at start, then
// on every tick, and stops when its context is cancelled. A failed prune is
// logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// HistoryPruner deletes recorded stages that finished before a cutoff.
type HistoryPruner interface {
	PruneStages(ctx context.Context, before time.Time) (int64, error)
}

// RetentionConfig holds configuration for the history retention job.
// Zero values fall back to defaults.
type RetentionConfig struct {
	RetentionDays int           // Days of history to keep (default: 90)
	CheckInterval time.Duration // How often to run (default: 24h)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// StartHistoryRetention blocks, pruning old history until ctx is cancelled.
// Call it in its own goroutine.
func StartHistoryRetention(ctx context.Context, p HistoryPruner, cfg RetentionConfig, logger *slog.Logger) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("history retention started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.CheckInterval,
	)

	PruneHistory(ctx, p, cfg, time.Now(), logger)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("history retention stopped")
			return
		case now := <-ticker.C:
			PruneHistory(ctx, p, cfg, now, logger)
		}
	}
}

// PruneHistory performs one retention pass relative to now.
func PruneHistory(ctx context.Context, p HistoryPruner, cfg RetentionConfig, now time.Time, logger *slog.Logger) int64 {
	cfg = cfg.withDefaults()
	start := time.Now()
	cutoff := now.AddDate(0, 0, -cfg.RetentionDays)

	pruned, err := p.PruneStages(ctx, cutoff)
	if err != nil {
		logger.Error("history prune failed", "error", err)
		return 0
	}
	logger.Info("pruned import history",
		"rows_pruned", pruned,
		"cutoff", cutoff,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pruned
}
