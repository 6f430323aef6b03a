// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/nbweb/internal/api"
	"github.com/starford/nbweb/internal/index"
	"github.com/starford/nbweb/internal/metrics"
	"github.com/starford/nbweb/internal/noteservice"
	"github.com/starford/nbweb/internal/sse"
)

const (
	indexEventThrottle = 2 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// NewLogger builds the structured JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Open opens the index database and wires the notebook service on top of
// it. The returned close function releases the database.
func Open(cfg *Config, logger *slog.Logger, m *metrics.Metrics, opts ...noteservice.Option) (*noteservice.Service, func() error, error) {
	if _, err := os.Stat(cfg.Notebook.Source); err != nil {
		return nil, nil, fmt.Errorf("notebook source %s: %w", cfg.Notebook.Source, err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init index: %w", err)
	}
	svc, err := noteservice.Build(cfg.Notebook, db, logger, m, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init notebook: %w", err)
	}
	return svc, db.Close, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := NewLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("notebook_source", cfg.Notebook.Source),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	m := metrics.New()

	// Document events fan out to SSE clients; anonymous clients never see
	// protected paths.
	var broker *sse.Broker
	notify := func(kind, path string) {
		if broker != nil {
			broker.PublishDocumentEvent(kind, path)
		}
	}

	svc, closeDB, err := Open(cfg, logger, m, noteservice.WithNotifier(notify))
	if err != nil {
		return err
	}
	defer closeDB()

	broker = sse.NewBroker(indexEventThrottle, sse.WithRequestFilter(api.EventFilter(svc)))
	defer broker.Close()

	start := time.Now()
	parsed, err := svc.Refresh(ctx, app.force, app.reset)
	if err != nil {
		logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial reconcile finished",
			slog.Int("parsed", parsed),
			slog.Bool("reset", app.reset),
			slog.Duration("took", time.Since(start)))
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.API(), broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "ok", "version": app.version})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if _, err := svc.Syncer().DB().Count(req.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", m.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Notebook.Watch {
		g.Go(func() error {
			if err := svc.Syncer().Watch(gCtx, notify); err != nil {
				// Polling below still keeps the index current.
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if interval := cfg.Notebook.RefreshInterval; interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
					n, err := svc.Refresh(gCtx, false, false)
					if err != nil {
						logger.Warn("periodic reconcile failed", slog.String("error", err.Error()))
						continue
					}
					if n > 0 {
						broker.Publish(sse.Event{Type: sse.TypeIndexUpdated})
					}
				}
			}
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher and ticker stop.
var errShutdown = errors.New("shutdown")

func writeStatus(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
