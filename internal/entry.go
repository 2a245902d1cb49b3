// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/growthlab/internal/api"
	"github.com/starford/growthlab/internal/cards"
	"github.com/starford/growthlab/internal/cardservice"
	"github.com/starford/growthlab/internal/convert"
	"github.com/starford/growthlab/internal/gc"
	"github.com/starford/growthlab/internal/index"
	"github.com/starford/growthlab/internal/mcpserver"
	"github.com/starford/growthlab/internal/parser"
	"github.com/starford/growthlab/internal/sse"
	"github.com/starford/growthlab/internal/storage"
	"github.com/starford/growthlab/internal/upload"
	"github.com/starford/growthlab/internal/watch"
)

// components are the pieces shared by every command.
type components struct {
	logger  *slog.Logger
	store   *storage.FS
	db      *index.DB
	gateway *convert.Gateway
	svc     *cardservice.Service
	closers []io.Closer
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			c.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the structured JSON logger. When a log file is configured
// records are also written to it through a rotating writer.
func newLogger(cfg ApplicationConfig, out io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer
	if cfg.LogFile.Path != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
			Compress:   cfg.LogFile.Compress,
		}
		out = io.MultiWriter(out, rotating)
		closer = rotating
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	return logger, closer
}

// build opens storage and the hash index and assembles the card service.
// broker may be nil when no event stream is served.
func (a *application) build(ctx context.Context, broker *sse.Broker) (*components, error) {
	cfg := a.config

	logger, logCloser := newLogger(cfg.App, a.logOutput)
	slog.SetDefault(logger)
	c := &components{logger: logger}
	if logCloser != nil {
		c.closers = append(c.closers, logCloser)
	}

	logger.Info("Configuration loaded",
		slog.String("version", a.version),
		slog.String("content_root", cfg.Content.Root),
		slog.String("sessions_dir", cfg.Content.SessionsDir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Content.Root, 0o755); err != nil {
		c.Close()
		return nil, fmt.Errorf("create content root: %w", err)
	}
	store, err := storage.NewFS(cfg.Content.Root)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	c.store = store

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init index: %w", err)
	}
	c.db = db
	c.closers = append(c.closers, db)

	// A failed sync leaves the index partly filled, which only costs
	// duplicate files.
	if rep, err := index.Sync(ctx, db, store, parser.MediaRoot, parser.MediaExt, logger); err != nil {
		logger.Warn("initial index sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("index synced",
			slog.Int("indexed", rep.Indexed),
			slog.Int("removed", rep.Removed))
	}

	convOpts := cfg.Convert.Options()
	c.gateway = convert.NewGateway(convert.Discover(exec.LookPath, convert.ExecRunner, convOpts), convOpts, logger)
	if names := c.gateway.Available(); len(names) == 0 {
		logger.Warn("no image converter found on PATH, uploads will fail",
			slog.Any("looked_for", []string{"gif2webp", "magick", "convert", "ffmpeg"}))
	} else {
		logger.Info("converters available", slog.Any("chain", names))
	}

	gcOpts := []gc.Option{gc.WithIndex(db)}
	if broker != nil {
		gcOpts = append(gcOpts, gc.WithDeleteHook(func(p string) {
			broker.Publish(sse.Event{Type: sse.MediaDeleted, Data: map[string]any{"path": p}})
		}))
	}
	collector := gc.New(store, logger, gcOpts...)

	uploads := upload.New(store, db, c.gateway, cfg.Upload.Options(), logger)

	svcOpts := []cardservice.Option{cardservice.WithSweepMinAge(cfg.GC.SweepMinAge)}
	if broker != nil {
		svcOpts = append(svcOpts, cardservice.WithNotifier(broker))
	}
	c.svc = cardservice.New(cards.NewStore(store, cfg.Content.SessionsDir), collector, uploads, logger, svcOpts...)

	return c, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := app.build(ctx, broker)
	if err != nil {
		return err
	}
	defer c.Close()
	logger := c.logger

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		sessionsDir, err := c.store.Abs(cfg.Content.SessionsDir)
		if err != nil {
			return fmt.Errorf("resolve sessions dir: %w", err)
		}
		var watchOpts []watch.Option
		if cfg.Watch.SweepOnRemove {
			watchOpts = append(watchOpts, watch.WithSweeper(c.svc))
		}
		g.Go(func() error {
			err := watch.Watch(gCtx, sessionsDir, logger, func(kind, name string) {
				broker.PublishSessionEvent(kind, name, nil)
			}, watchOpts...)
			if err != nil {
				// The API keeps working without live updates.
				logger.Error("session watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stops the watcher.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// Sweep collects unreferenced media of the named sessions, or of every
// session document when names is empty.
func Sweep(ctx context.Context, names []string, opts ...Option) ([]gc.SweepReport, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	c, err := app.build(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if len(names) == 0 {
		if names, err = c.svc.ListSessions(ctx); err != nil {
			return nil, err
		}
	}

	reports := make([]gc.SweepReport, 0, len(names))
	for _, name := range names {
		rep, err := c.svc.Sweep(ctx, name)
		if err != nil {
			return reports, fmt.Errorf("sweep %s: %w", name, err)
		}
		c.logger.Info("session swept",
			slog.String("session", rep.Session),
			slog.Int("scanned", rep.Scanned),
			slog.Int("deleted", rep.Deleted))
		reports = append(reports, rep)
	}
	return reports, nil
}

// ServeMCP serves the MCP tools over stdin and stdout until the client
// disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := app.build(ctx, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	c.logger.Info("Starting MCP server on stdio")
	return mcpserver.New(c.svc, app.version).ServeStdio()
}
