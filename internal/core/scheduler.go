package core

// scheduler.go runs background maintenance for the load history.
//
// Entries older than the retention window are deleted once at startup and
// then on a cron schedule. A failed prune is logged and retried on the next
// tick; it never stops the application.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// PruneConfig holds configuration for the history pruner.
type PruneConfig struct {
	RetentionDays int    // Days to keep (default: 90)
	Schedule      string // Standard cron spec or descriptor (default: @daily)
}

// StartHistoryPruner prunes history immediately, then on cfg.Schedule, until
// ctx is cancelled. It returns an error only if the schedule cannot be
// parsed.
func StartHistoryPruner(ctx context.Context, h *HistoryStore, cfg PruneConfig) error {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, func() { runPruneJob(ctx, h, cfg) }); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}

	slog.Info("history pruner started",
		"retention_days", cfg.RetentionDays,
		"schedule", cfg.Schedule,
	)

	runPruneJob(ctx, h, cfg)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("history pruner stopped")
	return nil
}

// runPruneJob performs one prune cycle.
func runPruneJob(ctx context.Context, h *HistoryStore, cfg PruneConfig) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	cutoff := start.AddDate(0, 0, -cfg.RetentionDays)

	pruned, err := h.Prune(ctx, cutoff)
	if err != nil {
		slog.Error("history prune failed", "error", err)
		return
	}
	slog.Info("pruned load history",
		"entries_pruned", pruned,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
