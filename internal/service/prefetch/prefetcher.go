// Package prefetch downloads listing thumbnails into the cache root in the
// background, one at a time and at a bounded rate.
package prefetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/port"
)

// Config contains prefetcher configuration
type Config struct {
	// Interval is the minimum delay between two background fetches
	Interval time.Duration

	// QueueSize bounds the number of pending URLs
	QueueSize int
}

// DefaultConfig returns default prefetcher configuration
func DefaultConfig() *Config {
	return &Config{
		Interval:  250 * time.Millisecond,
		QueueSize: 256,
	}
}

// Prefetcher fetches thumbnails into the cache
type Prefetcher struct {
	config  *Config
	source  port.ThumbnailSource
	fs      port.FileSystem
	limiter *rate.Limiter
	logger  *zap.Logger

	queue chan string
	group singleflight.Group

	mu      sync.Mutex
	pending map[string]struct{}
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new Prefetcher
func New(cfg *Config, source port.ThumbnailSource, fs port.FileSystem, logger *zap.Logger) *Prefetcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}

	return &Prefetcher{
		config:  cfg,
		source:  source,
		fs:      fs,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		queue:   make(chan string, cfg.QueueSize),
		pending: make(map[string]struct{}),
	}
}

// Enqueue schedules url for a background fetch. It never blocks: cached
// and already queued URLs are skipped, and the URL is dropped when the
// queue is full. Returns whether the URL was queued.
func (p *Prefetcher) Enqueue(url string) bool {
	if url == "" || p.fs.FileExists(p.fs.ThumbnailPath(url)) {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[url]; ok {
		return false
	}

	select {
	case p.queue <- url:
		p.pending[url] = struct{}{}
		return true
	default:
		p.logger.Debug("prefetch queue full, dropping thumbnail", zap.String("url", url))
		return false
	}
}

// EnqueueAll schedules the thumbnails of a listing page
func (p *Prefetcher) EnqueueAll(assets []domain.AssetSummary) int {
	queued := 0
	for _, a := range assets {
		if p.Enqueue(a.ThumbnailURL) {
			queued++
		}
	}
	return queued
}

// Pending returns the number of queued URLs
func (p *Prefetcher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Fetch returns the local path of the thumbnail for url, downloading it
// first if needed. Concurrent fetches of one URL share a single download.
func (p *Prefetcher) Fetch(ctx context.Context, url string) (string, error) {
	path := p.fs.ThumbnailPath(url)
	if p.fs.FileExists(path) {
		return path, nil
	}

	_, err, _ := p.group.Do(url, func() (interface{}, error) {
		if p.fs.FileExists(path) {
			return nil, nil
		}

		body, err := p.source.FetchThumbnail(ctx, url)
		if err != nil {
			return nil, err
		}
		defer body.Close()

		written, err := p.fs.WriteFileAtomic(path, body)
		if err != nil {
			return nil, domain.NewFilesystemError("write thumbnail", err)
		}

		p.logger.Debug("thumbnail cached",
			zap.String("url", url),
			zap.String("path", path),
			zap.Int64("bytes", written))
		return nil, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch thumbnail: %w", err)
	}
	return path, nil
}

// Start runs the background fetch loop until ctx is cancelled or Stop is called
func (p *Prefetcher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("prefetcher already running")
	}
	p.running = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.logger.Info("thumbnail prefetcher started",
		zap.Duration("interval", p.config.Interval),
		zap.Int("queue_size", p.config.QueueSize))

	p.wg.Add(1)
	go p.fetchLoop(ctx)

	<-ctx.Done()
	p.wg.Wait()
	p.logger.Info("thumbnail prefetcher stopped")
	return nil
}

// Stop stops the background fetch loop
func (p *Prefetcher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	p.running = false
}

func (p *Prefetcher) fetchLoop(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case url := <-p.queue:
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := p.Fetch(ctx, url); err != nil && ctx.Err() == nil {
				p.logger.Warn("thumbnail prefetch failed",
					zap.String("url", url),
					zap.Error(err))
			}
			p.done(url)
		}
	}
}

func (p *Prefetcher) done(url string) {
	p.mu.Lock()
	delete(p.pending, url)
	p.mu.Unlock()
}
