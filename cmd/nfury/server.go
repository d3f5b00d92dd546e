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

	"github.com/spf13/cobra"

	"github.com/unhackeddev/nfury/internal/api"
	"github.com/unhackeddev/nfury/internal/auth"
	"github.com/unhackeddev/nfury/internal/cache"
	"github.com/unhackeddev/nfury/internal/config"
	"github.com/unhackeddev/nfury/internal/domain"
	"github.com/unhackeddev/nfury/internal/runner"
	"github.com/unhackeddev/nfury/internal/scheduler"
	"github.com/unhackeddev/nfury/internal/sqlite"
	"github.com/unhackeddev/nfury/internal/stream"
	"github.com/unhackeddev/nfury/internal/token"
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the catalog server and REST API",
		Long: `Start the nfury server: a REST API over the persistent catalog of
projects, endpoints, schedules, and recorded runs, with a live SSE
metric stream at /events.

Configuration is read from NFURY_CONFIG, ./nfury.yaml, or built-in
defaults. Set NFURY_API_KEY to require bearer authentication on the
API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	// Context-aware handler so request_id lands on every request-scoped log line.
	baseHandler := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(api.NewContextHandler(baseHandler)))

	configPath := config.ResolvePath()
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		return err
	}
	if configPath != "" {
		slog.Info("config loaded", "path", configPath)
	}

	db, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.Database.Path, "error", err)
		return err
	}
	defer db.Close()

	if err := sqlite.Migrate(ctx, db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		return err
	}
	slog.Info("database ready", "path", cfg.Database.Path)

	projects := sqlite.NewProjectStore(db)
	endpoints := sqlite.NewEndpointStore(db)
	runs := sqlite.NewRunStore(db)
	snapshots := sqlite.NewSnapshotStore(db)
	schedules := sqlite.NewScheduleStore(db)

	hub := stream.NewHub()
	load := runner.New(runs, snapshots, endpoints, projects, hub, token.NewFetcher())

	// Built even when disabled: the API needs its cron parser for
	// schedule validation.
	sched := scheduler.New(schedules, load, cfg.Scheduler.Interval)

	srv := &api.Server{
		Projects:    projects,
		Endpoints:   endpoints,
		Runs:        runs,
		Schedules:   schedules,
		Transfer:    sqlite.NewTransferStore(db),
		Load:        load,
		Cron:        sched,
		Hub:         hub,
		CORSOrigins: cfg.Server.CORSOrigins,
		DBHealth:    sqlite.NewHealth(db),
		ProjectCache: cache.New[string, []domain.Project](cache.Options{
			TTL:        30 * time.Second,
			MaxEntries: 10, // project list is a single "all" entry
		}),
	}

	if apiKey := os.Getenv("NFURY_API_KEY"); apiKey != "" {
		srv.Auth = auth.APIKey(apiKey)
		slog.Info("API key authentication enabled")
	} else {
		srv.Auth = auth.Noop()
		slog.Warn("NFURY_API_KEY not set, API is unauthenticated")
	}

	if cfg.Scheduler.Enabled {
		sched.Start(ctx)
		slog.Info("scheduler started", "interval", cfg.Scheduler.Interval)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(srv),
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: /events holds SSE streams open up to 30 minutes.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	slog.Info("starting nfury server", "addr", addr, "version", api.Version, "commit", api.GitCommit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			return err
		}
	}

	// Graceful shutdown: drain HTTP, stop the schedule ticker, then let the
	// active run (if any) finish persisting its cancelled aggregate.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	if cfg.Scheduler.Enabled {
		sched.Stop()
		slog.Info("scheduler stopped")
	}
	if err := load.Shutdown(shutdownCtx); err != nil {
		slog.Error("runner shutdown error", "error", err)
	}

	slog.Info("nfury shutdown complete")
	return nil
}
