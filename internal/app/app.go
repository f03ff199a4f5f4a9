// Package app wires the cache services together from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/vertextoedge/texture-cache/internal/adapter/ambientcg"
	"github.com/vertextoedge/texture-cache/internal/adapter/archive"
	"github.com/vertextoedge/texture-cache/internal/adapter/filesystem"
	"github.com/vertextoedge/texture-cache/internal/adapter/material"
	"github.com/vertextoedge/texture-cache/internal/adapter/sqlite"
	"github.com/vertextoedge/texture-cache/internal/config"
	"github.com/vertextoedge/texture-cache/internal/domain/event"
	"github.com/vertextoedge/texture-cache/internal/service/acquirer"
	"github.com/vertextoedge/texture-cache/internal/service/browser"
	"github.com/vertextoedge/texture-cache/internal/service/maintenance"
	"github.com/vertextoedge/texture-cache/internal/service/prefetch"
	"github.com/vertextoedge/texture-cache/internal/service/server"
)

const shutdownTimeout = 30 * time.Second

// App holds every long-lived component of the process
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	FS          *filesystem.Manager
	Store       *sqlite.Store
	Client      *ambientcg.Client
	Dispatcher  *event.InMemoryDispatcher
	Registry    *prometheus.Registry
	Assets      *acquirer.Manager
	Materials   *material.Builder
	Prefetcher  *prefetch.Prefetcher
	Browser     *browser.Service
	Maintenance *maintenance.Service
}

// New builds the application. Close must be called to release the
// database and cancel in-flight downloads.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fs, err := filesystem.NewManagerWithBufferSize(cfg.Cache.RootDir, cfg.Cache.GetBufferSize())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache directory: %w", err)
	}

	store, err := sqlite.OpenWithOptions(cfg.GetDatabasePath(), sqlite.Options{
		BusyTimeoutMs: cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	client := ambientcg.NewClient(ambientcg.ClientConfig{
		BaseURL:             cfg.Source.BaseURL,
		UserAgent:           cfg.Source.UserAgent,
		Thumbnails:          cfg.Source.Thumbnails,
		Sort:                cfg.Source.Sort,
		ListingRateInterval: cfg.Source.GetListingRateInterval(),
		DownloadTimeout:     cfg.Cache.GetDownloadTimeout(),
		BufferSize:          cfg.Cache.GetBufferSize(),
	}, logger)

	dispatcher := event.NewInMemoryDispatcher(false, func(e event.DomainEvent, err error) {
		logger.Error("event handler failed", zap.String("event", e.EventName()), zap.Error(err))
	})
	dispatcher.Subscribe(event.NewLoggingHandler(logger))
	dispatcher.Subscribe(event.NewHistoryHandler(store))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	space := acquirer.NewSpaceManager(fs, cfg.Cache.GetMaxSize(), float64(cfg.Cache.MaxDiskUsagePercent))

	assets := acquirer.New(acquirer.Config{
		ChunkSize:       cfg.Cache.GetBufferSize(),
		DownloadTimeout: cfg.Cache.GetDownloadTimeout(),
	}, client, archive.NewZipExtractor(cfg.Cache.GetBufferSize()), fs, space,
		dispatcher, acquirer.NewMetrics(registry), logger)

	thumbs := prefetch.New(&prefetch.Config{
		Interval:  cfg.Prefetch.GetInterval(),
		QueueSize: cfg.Prefetch.QueueSize,
	}, client, fs, logger)

	maint := maintenance.New(&maintenance.Config{
		CleanupInterval: cfg.Cache.GetCleanupInterval(),
		TempFileMaxAge:  cfg.Cache.GetTempMaxAge(),
		HistoryMaxAge:   cfg.Cache.GetHistoryMaxAge(),
		InUse:           assets.InUse,
	}, store, fs, logger)

	return &App{
		Config:      cfg,
		Logger:      logger,
		FS:          fs,
		Store:       store,
		Client:      client,
		Dispatcher:  dispatcher,
		Registry:    registry,
		Assets:      assets,
		Materials:   material.NewBuilder(),
		Prefetcher:  thumbs,
		Browser:     browser.New(client, store, thumbs, cfg.Source.PageSize, logger),
		Maintenance: maint,
	}, nil
}

// NewServer builds the HTTP API on top of the application
func (a *App) NewServer() *server.Server {
	return server.New(&server.Config{
		BindAddr:       a.Config.HTTP.BindAddr,
		AuthUsername:   a.Config.HTTP.AuthUsername,
		AuthPassword:   a.Config.HTTP.AuthPassword,
		ReadTimeout:    a.Config.HTTP.GetReadTimeout(),
		WriteTimeout:   a.Config.HTTP.GetWriteTimeout(),
		IdleTimeout:    a.Config.HTTP.GetIdleTimeout(),
		ThumbnailHosts: a.Config.Source.GetThumbnailHosts(),
	}, server.Deps{
		Assets:     a.Assets,
		Materials:  a.Materials,
		Browser:    a.Browser,
		Thumbnails: a.Prefetcher,
		History:    a.Store,
		Store:      a.Store,
		Gatherer:   a.Registry,
	}, a.Logger)
}

// Serve runs the HTTP API, the thumbnail prefetcher and the maintenance
// loop until ctx is done, then shuts them down.
func (a *App) Serve(ctx context.Context) error {
	httpServer := a.NewServer()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	go func() {
		if err := a.Prefetcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("prefetcher stopped with error", zap.Error(err))
		}
	}()

	go func() {
		if err := a.Maintenance.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	a.Logger.Info("application started successfully",
		zap.String("http_addr", a.Config.HTTP.BindAddr),
		zap.String("cache_dir", a.Config.Cache.RootDir),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received, stopping services...")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	a.Prefetcher.Stop()
	a.Maintenance.Stop()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		a.Logger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	a.Logger.Info("application stopped successfully")
	return runErr
}

// Close cancels in-flight acquisitions and closes the database
func (a *App) Close() error {
	a.Assets.Close()
	a.Dispatcher.Wait()
	return a.Store.Close()
}
