// Package main is the entry point for the herald notification server.
//
// It loads configuration, connects the Postgres pool, builds the template
// renderer, channel registry, dedup policies, and notification registry from
// the declarative registry file, then runs the HTTP server and the cron
// scheduler side by side until a shutdown signal arrives.
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

	"golang.org/x/sync/errgroup"

	"herald/internal/api"
	"herald/internal/channels"
	"herald/internal/config"
	"herald/internal/db"
	"herald/internal/dedup"
	"herald/internal/events"
	"herald/internal/pipeline"
	"herald/internal/registry"
	"herald/internal/scheduler"
	"herald/internal/templates"
	"herald/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := &slogAdapter{logger: newLogger(cfg.LogLevel)}
	logger.Info("herald starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()
	store := db.NewStore(pool)

	regFile, err := config.LoadRegistryFile(cfg.RegistryFile)
	if err != nil {
		return fmt.Errorf("loading registry file %s: %w", cfg.RegistryFile, err)
	}

	renderer, err := templates.NewRenderer(regFile.Templates)
	if err != nil {
		return fmt.Errorf("compiling templates: %w", err)
	}

	channelRegistry := channels.NewRegistry()
	channelFactories := []struct {
		name    string
		factory channels.Factory
	}{
		{"email", func() (channels.Channel, error) {
			return channels.NewEmailChannel(channels.EmailConfig{
				OutputDir: cfg.Channels.EmailOutputDir,
				FromAddr:  cfg.Channels.EmailFromAddr,
			}), nil
		}},
		{"slack", func() (channels.Channel, error) {
			return channels.NewSlackChannel(channels.SlackConfig{
				DefaultChannel: cfg.Channels.SlackDefaultChannel,
			}), nil
		}},
		{"webhook", func() (channels.Channel, error) {
			return channels.NewWebhookChannel(channels.WebhookConfig{
				Timeout: cfg.Channels.WebhookTimeout,
			}), nil
		}},
	}
	for _, cf := range channelFactories {
		if err := channelRegistry.Register(cf.name, cf.factory); err != nil {
			return fmt.Errorf("registering channel %s: %w", cf.name, err)
		}
	}

	policies := dedup.NewManager()
	if err := policies.Register(dedup.NewTimeWindowPolicy(store, cfg.Dedup.Window)); err != nil {
		return fmt.Errorf("registering dedup policy: %w", err)
	}

	notifRegistry := registry.New(registry.ReferenceChecker{
		Templates: renderer,
		Channels:  channelRegistry,
		Policies:  policies,
	})
	for _, def := range regFile.Definitions {
		if err := notifRegistry.Register(def); err != nil {
			return fmt.Errorf("registering definition %s: %w", def.ID, err)
		}
	}
	logger.Info("registry loaded",
		"definitions", len(regFile.Definitions),
		"templates", len(regFile.Templates),
		"scheduled_sources", len(regFile.Scheduled),
	)

	pipe := pipeline.NewService(pipeline.Config{
		Store:        store,
		Definitions:  notifRegistry,
		Renderer:     renderer,
		Channels:     channelRegistry,
		Policies:     policies,
		MaxBatchSize: cfg.Server.MaxBatchSize,
		Logger:       logger.With("component", "pipeline"),
	})

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("loading scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}
	sched := scheduler.New(scheduler.Config{
		Sink:     pipe,
		Tick:     cfg.Scheduler.Tick,
		Location: loc,
		Logger:   logger.With("component", "scheduler"),
	})
	for _, sc := range regFile.Scheduled {
		src := events.NewScheduledSource(sc.ID, sc.Query, sc.Params, store)
		if err := sched.RegisterSource(sc.ID, sc.Cron, src); err != nil {
			return fmt.Errorf("registering scheduled source %s: %w", sc.ID, err)
		}
	}
	if cfg.Scheduler.MaintenanceCron != "" {
		retention := cfg.Dedup.Retention
		err := sched.RegisterJob("dedup_maintenance", cfg.Scheduler.MaintenanceCron, func(ctx context.Context) error {
			cutoff := time.Now().UTC().Add(-retention)
			pruned, err := store.DeleteDedupRecordsBefore(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("pruning dedup records: %w", err)
			}
			logger.Info("dedup records pruned", "count", pruned, "cutoff", cutoff.Format(time.RFC3339))
			return nil
		})
		if err != nil {
			return fmt.Errorf("registering maintenance job: %w", err)
		}
	}

	srv := api.NewServer(api.Config{
		Ingestor:    pipe,
		Definitions: notifRegistry,
		Templates:   renderer,
		Channels:    channelRegistry,
		Scheduler:   sched,
		Events:      store,
		DB:          pool,
		Logger:      logger.With("component", "api"),
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           http.TimeoutHandler(srv.Routes(), cfg.Server.RequestTimeout, "request timed out"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly, but With returns
// *slog.Logger rather than types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// Compile-time assertion that slogAdapter implements types.Logger.
var _ types.Logger = (*slogAdapter)(nil)
