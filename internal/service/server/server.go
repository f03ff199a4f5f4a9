package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vertextoedge/texture-cache/internal/port"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	AuthUsername string
	AuthPassword string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ThumbnailHosts lists the hosts /api/thumbnails may fetch from.
	// Entries are a host name or host:port. Empty rejects every URL.
	ThumbnailHosts []string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "127.0.0.1:8787",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Deps are the services behind the API. Store, History, Thumbnails and
// Gatherer may be nil; their endpoints then report unavailable.
type Deps struct {
	Assets     AssetCache
	Materials  port.MaterialBuilder
	Browser    Searcher
	Thumbnails ThumbnailFetcher
	History    port.HistoryRepository
	Store      port.Store
	Gatherer   prometheus.Gatherer
}

// Server represents the HTTP API server
type Server struct {
	config         *Config
	store          port.Store
	logger         *zap.Logger
	server         *http.Server
	assetHandler   *AssetHandler
	catalogHandler *CatalogHandler
}

// New creates a new HTTP server
func New(cfg *Config, deps Deps, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config: cfg,
		store:  deps.Store,
		logger: logger,
	}

	s.assetHandler = NewAssetHandler(deps.Assets, deps.Materials, logger)
	s.catalogHandler = NewCatalogHandler(deps.Browser, deps.Thumbnails, deps.History, cfg.ThumbnailHosts, logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Asset cache
	mux.HandleFunc("GET /api/assets", s.assetHandler.HandleList)
	mux.HandleFunc("POST /api/assets/{id}/{res}", s.assetHandler.HandleEnsure)
	mux.HandleFunc("GET /api/assets/{id}/{res}", s.assetHandler.HandlePoll)
	mux.HandleFunc("DELETE /api/assets/{id}/{res}", s.assetHandler.HandleCancel)
	mux.HandleFunc("GET /api/assets/{id}/{res}/material", s.assetHandler.HandleMaterial)
	mux.HandleFunc("GET /api/assets/{id}/{res}/files/{name}", s.assetHandler.HandleFile)

	// Listing, thumbnails and history
	mux.HandleFunc("GET /api/search", s.catalogHandler.HandleSearch)
	mux.HandleFunc("GET /api/thumbnails", s.catalogHandler.HandleThumbnail)
	mux.HandleFunc("GET /api/history", s.catalogHandler.HandleHistory)

	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	if cfg.AuthUsername != "" {
		handler = BasicAuthMiddleware(cfg.AuthUsername, cfg.AuthPassword, logger)(handler)
	}

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      LoggingMiddleware(logger)(handler),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, including middleware
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "database connection failed")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
