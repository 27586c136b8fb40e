// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dandytbermillo/canvasd/internal/api"
	"github.com/dandytbermillo/canvasd/internal/archive"
	"github.com/dandytbermillo/canvasd/internal/canvas"
	"github.com/dandytbermillo/canvasd/internal/canvasservice"
	"github.com/dandytbermillo/canvasd/internal/mcpserver"
	"github.com/dandytbermillo/canvasd/internal/metrics"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/remote"
	"github.com/dandytbermillo/canvasd/internal/snapshot"
	"github.com/dandytbermillo/canvasd/internal/sse"
	"github.com/dandytbermillo/canvasd/internal/store"
	"github.com/dandytbermillo/canvasd/internal/workspace"
	"github.com/dandytbermillo/canvasd/internal/ws"
)

// newPanelStore builds the authoritative record store for the configured
// driver. The returned close func is nil for drivers without teardown.
func newPanelStore(ctx context.Context, cfg *StoreConfig, logger *slog.Logger) (store.PanelStore, func() error, error) {
	if cfg.Driver == StoreDriverPostgres {
		pg, err := store.NewPostgres(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return pg, pg.Close, nil
	}
	return store.NewMemory(), nil, nil
}

// newArchiveProvider builds the snapshot archive for the configured driver.
// The *archive.FS return is non-nil only for the fs driver, which supports
// watching for external edits.
func newArchiveProvider(ctx context.Context, cfg *ArchiveConfig) (archive.Provider, *archive.FS, error) {
	switch cfg.Driver {
	case ArchiveDriverFS:
		fsProv, err := archive.NewFS(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init fs archive: %w", err)
		}
		return fsProv, fsProv, nil
	case ArchiveDriverS3:
		s3p, err := archive.NewS3(ctx, archive.S3Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init s3 archive: %w", err)
		}
		return s3p, nil, nil
	}
	return nil, nil, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.loggerOrDefault(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("archive_driver", cfg.Archive.Driver),
		slog.String("snapshot_path", cfg.Snapshot.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Authoritative panel record store.
	panels, closeStore, err := newPanelStore(ctx, &cfg.Store, logger)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer func() { _ = closeStore() }()
	}

	// SQLite layout cache.
	db, err := snapshot.Open(cfg.Snapshot.Path)
	if err != nil {
		return fmt.Errorf("init snapshot cache: %w", err)
	}
	defer func() { _ = db.Close() }()
	cache := metrics.InstrumentCache(db)

	// Archive provider for committed snapshot exports.
	prov, fsProv, err := newArchiveProvider(ctx, &cfg.Archive)
	if err != nil {
		return err
	}

	// Import archived layouts missing from the cache before the first open.
	if prov != nil {
		if err := archive.Sync(ctx, cache, prov, logger); err != nil {
			logger.Warn("initial archive sync failed", slog.String("error", err.Error()))
		}
	}

	// SSE broker.
	broker := sse.NewBroker()
	metrics.TrackSSEClients(broker.ClientCount)

	// Remote persistence mirror.
	var remoteClient canvas.RemotePersister = remote.Noop{}
	var closeRemote func()
	if cfg.Remote.Enabled {
		rc, err := remote.New(cfg.Remote.BaseURL, cfg.Remote.Token, logger)
		if err != nil {
			return fmt.Errorf("init remote client: %w", err)
		}
		rc.OnResult(metrics.RemoteRequest)
		remoteClient = rc
		closeRemote = rc.Close
	}

	var onSaved func(string, models.Snapshot)
	if prov != nil {
		exporter := archive.NewExporter(prov, logger)
		onSaved = exporter.Export
	}

	mgr := canvas.NewManager(canvas.Deps{
		Store:            panels,
		Cache:            cache,
		Hints:            workspace.NewHints(cfg.Canvas.HintTTL()),
		Remote:           remoteClient,
		Sink:             broker,
		Stats:            metrics.EngineStats{},
		Params:           cfg.Canvas.Params(),
		Logger:           logger,
		SnapshotDebounce: cfg.Snapshot.DebounceOrDefault(),
		OnSaved:          onSaved,
	})

	// Build API service and router.
	svc := canvasservice.NewService(mgr)
	liveHandler := ws.NewHandler(mgr, logger)
	apiRouter := api.NewRouter(svc,
		cfg.Auth.Mode, cfg.Auth.Token, cfg.Auth.JWTSecret,
		http.HandlerFunc(broker.ServeHTTP), liveHandler)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check and metrics endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the fs archive for externally edited layouts.
	if fsProv != nil {
		g.Go(func() error {
			err := archive.Watch(gCtx, cache, fsProv, logger, func(noteID string) {
				broker.Publish("canvas.imported", map[string]any{"noteId": noteID})
			})
			if err != nil {
				logger.Warn("archive watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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

		// Flush engines before the broker and mirror go away so pending
		// snapshot saves and exports still land.
		mgr.CloseAll()
		broker.Close()
		if closeRemote != nil {
			closeRemote()
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

// RunMCP serves the canvas tools over the Model Context Protocol on stdio.
// Logs go to stderr because the protocol owns stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.loggerOrDefault(os.Stderr)
	slog.SetDefault(logger)

	panels, closeStore, err := newPanelStore(ctx, &cfg.Store, logger)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer func() { _ = closeStore() }()
	}

	db, err := snapshot.Open(cfg.Snapshot.Path)
	if err != nil {
		return fmt.Errorf("init snapshot cache: %w", err)
	}
	defer func() { _ = db.Close() }()

	prov, _, err := newArchiveProvider(ctx, &cfg.Archive)
	if err != nil {
		return err
	}
	var onSaved func(string, models.Snapshot)
	if prov != nil {
		if err := archive.Sync(ctx, db, prov, logger); err != nil {
			logger.Warn("initial archive sync failed", slog.String("error", err.Error()))
		}
		onSaved = archive.NewExporter(prov, logger).Export
	}

	var remoteClient canvas.RemotePersister = remote.Noop{}
	if cfg.Remote.Enabled {
		rc, err := remote.New(cfg.Remote.BaseURL, cfg.Remote.Token, logger)
		if err != nil {
			return fmt.Errorf("init remote client: %w", err)
		}
		defer rc.Close()
		remoteClient = rc
	}

	mgr := canvas.NewManager(canvas.Deps{
		Store:            panels,
		Cache:            db,
		Hints:            workspace.NewHints(cfg.Canvas.HintTTL()),
		Remote:           remoteClient,
		Params:           cfg.Canvas.Params(),
		Logger:           logger,
		SnapshotDebounce: cfg.Snapshot.DebounceOrDefault(),
		OnSaved:          onSaved,
	})
	defer mgr.CloseAll()

	srv := mcpserver.New(canvasservice.NewService(mgr))

	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}
