package acquirer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vertextoedge/texture-cache/internal/domain"
)

// Handle tracks one acquisition attempt for a key.
//
// Counters and the state are atomics so Poll never blocks on the worker.
// err and localPath are written once, before the terminal state is stored,
// and read only after a terminal state has been observed.
type Handle struct {
	key       domain.AssetKey
	startedAt time.Time

	state           atomic.Int32
	bytesTotal      atomic.Int64 // 0 until the server reports a size
	bytesDownloaded atomic.Int64

	localPath string
	err       error

	cancel     context.CancelFunc
	cancelling atomic.Bool // set by Cancel before the context is cancelled
	done       chan struct{}
}

func newHandle(key domain.AssetKey) *Handle {
	return &Handle{
		key:       key,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// newReadyHandle returns a completed handle for an extraction directory
// found on disk.
func newReadyHandle(key domain.AssetKey, localPath string) *Handle {
	h := newHandle(key)
	h.localPath = localPath
	h.state.Store(int32(domain.StateReady))
	close(h.done)
	return h
}

// Key returns the asset key
func (h *Handle) Key() domain.AssetKey {
	return h.key
}

// StartedAt returns when the attempt began
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// State returns the current state
func (h *Handle) State() domain.CacheState {
	return domain.CacheState(h.state.Load())
}

// Done is closed once the attempt has finished and its terminal event
// has been dispatched.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Progress returns a point-in-time view of the attempt. It never blocks.
func (h *Handle) Progress() domain.Progress {
	state := h.State()
	downloaded := h.bytesDownloaded.Load()
	total := h.bytesTotal.Load()

	p := domain.Progress{
		Key:             h.key,
		Identifier:      h.key.Identifier,
		Resolution:      h.key.Resolution,
		State:           state,
		Fraction:        domain.ComputeFraction(state, downloaded, total),
		BytesDownloaded: downloaded,
		BytesTotal:      total,
	}

	switch state {
	case domain.StateReady:
		p.LocalPath = h.localPath
	case domain.StateFailed:
		if h.err != nil {
			p.Error = h.err.Error()
		}
	}
	return p
}

// Wait blocks until the attempt finishes or ctx is done. It returns the
// extraction directory on success and ErrCancelled for a cancelled attempt.
func (h *Handle) Wait(ctx context.Context) (string, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	switch h.State() {
	case domain.StateReady:
		return h.localPath, nil
	case domain.StateFailed:
		return "", h.err
	default:
		return "", domain.ErrCancelled
	}
}

func (h *Handle) recordTotal(size int64) {
	if size > 0 {
		h.bytesTotal.CompareAndSwap(0, size)
	}
}

func (h *Handle) setState(s domain.CacheState) {
	h.state.Store(int32(s))
}

func (h *Handle) finishReady(localPath string) {
	h.localPath = localPath
	h.setState(domain.StateReady)
}

func (h *Handle) finishFailed(err error) {
	h.err = err
	h.setState(domain.StateFailed)
}

func (h *Handle) finishCancelled() {
	h.err = domain.ErrCancelled
	h.setState(domain.StateNotStarted)
}
