package acquirer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/domain/event"
	"github.com/vertextoedge/texture-cache/internal/port"
)

var errConnReset = errors.New("connection reset by peer")

// fakeSource serves archive bytes in small chunks and counts downloads
type fakeSource struct {
	mu         sync.Mutex
	calls      map[domain.AssetKey]int
	payload    []byte
	reportSize int64 // 0 means use len(payload), -1 means unknown
	chunk      int
	delay      time.Duration
	failAfter  int // fail once this many bytes were sent; 0 disables
	openErr    error
	gate       chan struct{} // first Read blocks until closed
}

var _ port.ArchiveSource = (*fakeSource)(nil)

func newFakeSource(payload []byte) *fakeSource {
	return &fakeSource{
		calls:   make(map[domain.AssetKey]int),
		payload: payload,
		chunk:   1024,
	}
}

func (s *fakeSource) ArchiveURL(key domain.AssetKey) string {
	return "http://fake/get?file=" + key.BaseName() + "-PNG.zip"
}

func (s *fakeSource) OpenArchive(ctx context.Context, key domain.AssetKey) (io.ReadCloser, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[key]++
	if s.openErr != nil {
		return nil, 0, s.openErr
	}

	size := s.reportSize
	if size == 0 {
		size = int64(len(s.payload))
	}
	return &fakeBody{
		ctx:       ctx,
		data:      s.payload,
		chunk:     s.chunk,
		delay:     s.delay,
		failAfter: s.failAfter,
		gate:      s.gate,
	}, size, nil
}

func (s *fakeSource) set(fn func(s *fakeSource)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *fakeSource) callCount(key domain.AssetKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *fakeSource) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

type fakeBody struct {
	ctx       context.Context
	data      []byte
	offset    int
	chunk     int
	delay     time.Duration
	failAfter int
	gate      chan struct{}
}

func (b *fakeBody) Read(p []byte) (int, error) {
	if b.gate != nil {
		select {
		case <-b.gate:
			b.gate = nil
		case <-b.ctx.Done():
			return 0, b.ctx.Err()
		}
	}
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-b.ctx.Done():
			return 0, b.ctx.Err()
		}
	}
	if b.failAfter > 0 && b.offset >= b.failAfter {
		return 0, errConnReset
	}
	if b.offset >= len(b.data) {
		return 0, io.EOF
	}

	n := b.chunk
	if n > len(p) {
		n = len(p)
	}
	if rest := len(b.data) - b.offset; n > rest {
		n = rest
	}
	if b.failAfter > 0 && b.offset+n > b.failAfter {
		n = b.failAfter - b.offset
	}
	copy(p, b.data[b.offset:b.offset+n])
	b.offset += n
	return n, nil
}

func (b *fakeBody) Close() error { return nil }

// recordingHandler captures dispatched events. Events named in hold block
// the dispatching goroutine until their channel is closed.
type recordingHandler struct {
	mu     sync.Mutex
	events []event.DomainEvent
	hold   map[string]chan struct{}
}

func (h *recordingHandler) Handle(e event.DomainEvent) error {
	h.mu.Lock()
	h.events = append(h.events, e)
	release := h.hold[e.EventName()]
	h.mu.Unlock()

	if release != nil {
		<-release
	}
	return nil
}

func (h *recordingHandler) holdOn(name string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hold == nil {
		h.hold = make(map[string]chan struct{})
	}
	release := make(chan struct{})
	h.hold[name] = release
	return release
}

func (h *recordingHandler) HandledEvents() []string { return []string{event.NameAll} }

func (h *recordingHandler) names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.events))
	for _, e := range h.events {
		names = append(names, e.EventName())
	}
	return names
}

// fakeSpace answers CheckSpace with a fixed result
type fakeSpace struct {
	hasSpace bool
	asked    []int64
	mu       sync.Mutex
}

func (f *fakeSpace) CheckSpace(size int64) (*port.SpaceCheckResult, error) {
	f.mu.Lock()
	f.asked = append(f.asked, size)
	f.mu.Unlock()
	return &port.SpaceCheckResult{HasSpace: f.hasSpace, NeededBytes: 2 * size}, nil
}

// zipBytes builds an in-memory archive. Files are written in the given order.
func zipBytes(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(bytes.Repeat([]byte(name), 200))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}
