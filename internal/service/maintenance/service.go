package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vertextoedge/texture-cache/internal/port"
	"go.uber.org/zap"
)

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often to run cleanup tasks
	CleanupInterval time.Duration

	// TempFileMaxAge is the age after which leftover archives and staging
	// directories are removed
	TempFileMaxAge time.Duration

	// HistoryMaxAge is the maximum age of acquisition history entries
	HistoryMaxAge time.Duration

	// InUse reports paths owned by a running acquisition. Such paths are
	// never cleaned, however old. Optional.
	InUse func(path string) bool
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval: time.Hour,
		TempFileMaxAge:  24 * time.Hour,
		HistoryMaxAge:   30 * 24 * time.Hour,
	}
}

// Result summarizes one cleanup pass
type Result struct {
	StaleEntries   int `json:"stale_entries"`
	HistoryEntries int `json:"history_entries"`
}

// Service handles periodic maintenance tasks
type Service struct {
	config  *Config
	history port.HistoryRepository
	fs      port.FileSystem
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. history may be nil.
func New(cfg *Config, history port.HistoryRepository, fs port.FileSystem, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 24 * time.Hour
	}
	if cfg.HistoryMaxAge == 0 {
		cfg.HistoryMaxAge = 30 * 24 * time.Hour
	}

	return &Service{
		config:  cfg,
		history: history,
		fs:      fs,
		logger:  logger,
	}
}

// Start runs one cleanup pass, then repeats it every CleanupInterval until
// ctx is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("temp_max_age", s.config.TempFileMaxAge))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// RunOnce performs a single cleanup pass. Failures of one task do not
// prevent the other; the first error is returned.
func (s *Service) RunOnce() (Result, error) {
	var result Result
	var firstErr error

	stale, err := s.cleanupStaleEntries()
	if err != nil {
		firstErr = err
	}
	result.StaleEntries = stale

	history, err := s.cleanupHistory()
	if err != nil && firstErr == nil {
		firstErr = err
	}
	result.HistoryEntries = history

	return result, firstErr
}

// maintenanceLoop handles periodic maintenance tasks
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	s.RunOnce()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			s.RunOnce()
		}
	}
}

// cleanupStaleEntries removes archives and staging directories left by
// interrupted acquisitions
func (s *Service) cleanupStaleEntries() (int, error) {
	count, err := s.fs.CleanStale(s.config.TempFileMaxAge, s.config.InUse)
	if err != nil {
		s.logger.Error("failed to clean stale cache entries", zap.Error(err))
		return count, fmt.Errorf("failed to clean stale cache entries: %w", err)
	}
	if count > 0 {
		s.logger.Info("cleaned up stale cache entries", zap.Int("count", count))
	}
	return count, nil
}

// cleanupHistory removes old acquisition history
func (s *Service) cleanupHistory() (int, error) {
	if s.history == nil {
		return 0, nil
	}
	count, err := s.history.CleanupAcquisitions(s.config.HistoryMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup acquisition history", zap.Error(err))
		return 0, fmt.Errorf("failed to cleanup acquisition history: %w", err)
	}
	if count > 0 {
		s.logger.Info("cleaned up old acquisition history", zap.Int("count", count))
	}
	return count, nil
}
