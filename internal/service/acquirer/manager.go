// Package acquirer resolves asset keys to local extraction directories,
// running at most one download and extract sequence per key.
package acquirer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/domain/event"
	"github.com/vertextoedge/texture-cache/internal/port"
)

// ErrClosed is returned by Ensure after Close
var ErrClosed = errors.New("acquirer is closed")

// Config holds acquirer configuration
type Config struct {
	ChunkSize       int           // read size while streaming an archive
	DownloadTimeout time.Duration // 0 means no timeout
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		ChunkSize: 64 * 1024,
	}
}

// Manager owns the registry of acquisition attempts.
// The filesystem stays the ground truth: a key whose extraction directory
// exists is Ready without any network activity.
type Manager struct {
	cfg       Config
	source    port.ArchiveSource
	extractor port.Extractor
	fs        port.FileSystem
	space     port.SpaceManager
	events    event.EventDispatcher
	metrics   *Metrics
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[domain.AssetKey]*Handle
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Manager. space, events and metrics may be nil.
func New(
	cfg Config,
	source port.ArchiveSource,
	extractor port.Extractor,
	fs port.FileSystem,
	space port.SpaceManager,
	events event.EventDispatcher,
	metrics *Metrics,
	logger *zap.Logger,
) *Manager {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if events == nil {
		events = &event.NullDispatcher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		source:    source,
		extractor: extractor,
		fs:        fs,
		space:     space,
		events:    events,
		metrics:   metrics,
		logger:    logger,
		entries:   make(map[domain.AssetKey]*Handle),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Ensure returns a handle for key without blocking on the network.
//
// An in-flight attempt for key is returned as is. Otherwise, if the
// extraction directory exists, a Ready handle is returned. Otherwise a new
// attempt starts in the background in state Downloading. An attempt that
// is being cancelled is never joined: the new attempt waits for it to stop
// before touching the archive.
func (m *Manager) Ensure(key domain.AssetKey) (*Handle, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	prev, ok := m.entries[key]
	if ok && prev.finished() {
		prev = nil
	}
	if prev != nil && !prev.cancelling.Load() {
		m.mu.Unlock()
		m.metrics.joined()
		m.logger.Debug("joined in-flight acquisition", zap.String("key", key.String()))
		return prev, nil
	}

	if dir := m.fs.ExtractDir(key); prev == nil && m.fs.DirExists(dir) {
		h := newReadyHandle(key, dir)
		m.entries[key] = h
		m.mu.Unlock()

		m.metrics.observeOutcome(domain.OutcomeCached, 0)
		m.events.Dispatch(event.NewAcquisitionReady(key, dir, 0, 0, h.startedAt, true))
		return h, nil
	}

	h := newHandle(key)
	var ctx context.Context
	var cancel context.CancelFunc
	if m.cfg.DownloadTimeout > 0 {
		ctx, cancel = context.WithTimeout(m.ctx, m.cfg.DownloadTimeout)
	} else {
		ctx, cancel = context.WithCancel(m.ctx)
	}
	h.cancel = cancel
	h.setState(domain.StateDownloading)
	m.entries[key] = h
	m.wg.Add(1)
	m.mu.Unlock()

	go m.acquire(ctx, h, prev)
	return h, nil
}

// Poll returns the current progress of h. It is side-effect free.
func (m *Manager) Poll(h *Handle) domain.Progress {
	return h.Progress()
}

// Cancel stops an in-progress download, removes the partial archive and
// returns the key to NotStarted. It waits for the worker to stop and
// reports whether the attempt was cancelled. Attempts already extracting
// or finished are not affected.
func (m *Manager) Cancel(h *Handle) bool {
	if h == nil || h.cancel == nil {
		return false
	}
	if h.State() != domain.StateDownloading {
		return false
	}

	h.cancelling.Store(true)
	h.cancel()
	<-h.done
	return h.State() == domain.StateNotStarted
}

// Lookup returns the most recent attempt for key, if any
func (m *Manager) Lookup(key domain.AssetKey) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.entries[key]
	return h, ok
}

// InUse reports whether path is the archive or staging directory of an
// attempt that has not finished yet.
func (m *Manager) InUse(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, h := range m.entries {
		if h.finished() {
			continue
		}
		if path == m.fs.ArchivePath(key) || path == m.fs.StagingDir(key) {
			return true
		}
	}
	return false
}

// Status reports progress for key without starting anything. A key never
// requested in this process is Ready when its extraction directory exists;
// otherwise ok is false.
func (m *Manager) Status(key domain.AssetKey) (domain.Progress, bool) {
	if h, ok := m.Lookup(key); ok {
		return h.Progress(), true
	}
	if err := key.Validate(); err != nil {
		return domain.Progress{}, false
	}
	if dir := m.fs.ExtractDir(key); m.fs.DirExists(dir) {
		return newReadyHandle(key, dir).Progress(), true
	}
	return domain.Progress{}, false
}

// Snapshot returns the progress of every known attempt, ordered by key
func (m *Manager) Snapshot() []domain.Progress {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.entries))
	for _, h := range m.entries {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	out := make([]domain.Progress, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.Progress())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// Close cancels in-flight downloads and waits for all workers to stop.
// Running extractions are allowed to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}
