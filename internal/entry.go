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

	"golang.org/x/sync/errgroup"

	"github.com/starford/gridedit/internal/api"
	"github.com/starford/gridedit/internal/grid"
	"github.com/starford/gridedit/internal/gridservice"
	"github.com/starford/gridedit/internal/index"
	"github.com/starford/gridedit/internal/mcpserver"
	"github.com/starford/gridedit/internal/sse"
	"github.com/starford/gridedit/internal/storage"
)

// components is everything a run mode needs, built from the config.
type components struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FS
	db     *index.DB
	engine *grid.Engine
}

func (c *components) close() {
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close index", slog.String("error", err.Error()))
	}
}

func (c *components) service(pub gridservice.Publisher) *gridservice.Service {
	return gridservice.NewService(c.engine, c.store, c.db, pub, c.logger)
}

func setup(opts []Option) (*components, error) {
	app := &application{logOut: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_root", cfg.Content.Root),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("default_cells", cfg.Grid.DefaultCells),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure content directory exists.
	if err := os.MkdirAll(cfg.Content.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Content.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if changes, err := index.Sync(db, store, cfg.Content.IndexFile, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial sync complete", slog.Int("changes", len(changes)))
	}

	engine := grid.New(store,
		grid.WithIndexFile(cfg.Content.IndexFile),
		grid.WithRowCells(cfg.Grid.DefaultCells),
		grid.WithLogger(logger),
	)

	return &components{cfg: cfg, logger: logger, store: store, db: db, engine: engine}, nil
}

// Run starts the HTTP server and the content watcher.
func Run(ctx context.Context, opts ...Option) error {
	c, err := setup(opts)
	if err != nil {
		return err
	}
	defer c.close()

	cfg, logger := c.cfg, c.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := c.service(broker)
	r := api.NewRouter(svc, api.RouterOptions{
		Prefix:         cfg.Content.Prefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Events:         broker,
	})

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		err := index.Watch(gCtx, c.db, c.store, cfg.Content.Root, cfg.Content.IndexFile, logger, broker.PublishNodeEvent)
		if err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
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

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the grid tools over MCP on stdin/stdout. Logs go to stderr
// unless WithLogOutput says otherwise.
func RunMCP(_ context.Context, opts ...Option) error {
	c, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	defer c.close()

	c.logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.service(nil)).ServeStdio()
}

// OneShot is a single grid operation run from the command line.
type OneShot func(ctx context.Context, svc *gridservice.Service) (any, error)

// RunOnce executes op against the content tree and writes its result as
// indented JSON to out. A partial failure is written too, so the operator
// can see what needs normalizing, and the error is still returned.
func RunOnce(ctx context.Context, out io.Writer, op OneShot, opts ...Option) error {
	c, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	defer c.close()

	res, err := op(ctx, c.service(nil))
	if err != nil {
		var pe *grid.PartialError
		if !errors.As(err, &pe) {
			return err
		}
		res = pe
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil && err == nil {
		return encErr
	}
	return err
}
