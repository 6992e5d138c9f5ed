package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/sheetload/internal/config"
	"github.com/JonMunkholm/sheetload/internal/core"
	_ "github.com/JonMunkholm/sheetload/internal/core/dialects" // Register all database kinds
	"github.com/JonMunkholm/sheetload/internal/logging"
	"github.com/JonMunkholm/sheetload/internal/web"
)

func main() {
	// Seed the environment from .env if present; real env vars win
	loaded := config.LoadEnvFiles()

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"env_files", loaded,
		"addr", cfg.Server.Addr(),
		"load_max_concurrent", cfg.Load.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"history_enabled", cfg.History.Enabled,
	)

	slog.Info("database kinds registered", "kinds", core.Kinds())

	// Open the load history store
	ctx := context.Background()
	var history *core.HistoryStore
	if cfg.History.Enabled {
		history, err = core.NewHistoryStore(ctx, cfg.History.Path)
		if err != nil {
			slog.Error("failed to open history store", "path", cfg.History.Path, "error", err)
			os.Exit(1)
		}
		defer history.Close()
		slog.Info("history store opened", "path", cfg.History.Path)
	}

	service := core.NewService(core.ServiceConfig{
		MaxConcurrent:  cfg.Load.MaxConcurrent,
		MaxWaitTime:    cfg.Load.MaxWaitTime,
		BatchSize:      cfg.Load.BatchSize,
		Timeout:        cfg.Load.Timeout,
		ConnectTimeout: cfg.Load.ConnectTimeout,
		PreviewRows:    cfg.Upload.PreviewRows,
		ODBCDriver:     cfg.Load.SQLServerODBCDriver,
	}, history)

	// Create server with config
	server := web.NewServer(service, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if history != nil {
		go func() {
			err := core.StartHistoryPruner(jobCtx, history, core.PruneConfig{
				RetentionDays: cfg.History.RetentionDays,
				Schedule:      cfg.History.PruneSchedule,
			})
			if err != nil {
				slog.Error("history pruner stopped", "error", err)
			}
		}()
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active loads to complete (with timeout)
		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for loads to complete", "active", status.Active)
			if err := service.WaitForLoads(shutdownCtx); err != nil {
				slog.Warn("loads did not complete in time, cancelling", "error", err)
				service.CancelAll()
			} else {
				slog.Info("all loads completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
