package acquirer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/texture-cache/internal/adapter/archive"
	"github.com/vertextoedge/texture-cache/internal/adapter/filesystem"
	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/domain/event"
)

type testEnv struct {
	manager *Manager
	source  *fakeSource
	fs      *filesystem.Manager
	events  *recordingHandler
	metrics *Metrics
}

type envOption func(cfg *Config, space **fakeSpace)

func withTimeout(d time.Duration) envOption {
	return func(cfg *Config, _ **fakeSpace) { cfg.DownloadTimeout = d }
}

func withSpace(s *fakeSpace) envOption {
	return func(_ *Config, space **fakeSpace) { *space = s }
}

func newTestEnv(t *testing.T, payload []byte, opts ...envOption) *testEnv {
	t.Helper()

	fsm, err := filesystem.NewManager(t.TempDir())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ChunkSize = 512
	var space *fakeSpace
	for _, opt := range opts {
		opt(&cfg, &space)
	}

	source := newFakeSource(payload)
	handler := &recordingHandler{}
	dispatcher := event.NewInMemoryDispatcher(false, nil)
	dispatcher.Subscribe(handler)
	metrics := NewMetrics(prometheus.NewRegistry())

	var m *Manager
	if space != nil {
		m = New(cfg, source, archive.NewZipExtractor(0), fsm, space, dispatcher, metrics, zap.NewNop())
	} else {
		m = New(cfg, source, archive.NewZipExtractor(0), fsm, nil, dispatcher, metrics, zap.NewNop())
	}
	t.Cleanup(m.Close)

	return &testEnv{manager: m, source: source, fs: fsm, events: handler, metrics: metrics}
}

func testKey(id string) domain.AssetKey {
	return domain.AssetKey{Identifier: id, Resolution: domain.Resolution2K}
}

func wait(t *testing.T, h *Handle) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.Wait(ctx)
}

func TestEnsure_ExistingDirectoryIsReadyWithoutNetwork(t *testing.T) {
	env := newTestEnv(t, nil)
	key := testKey("Bricks001")
	dir := env.fs.ExtractDir(key)
	require.NoError(t, os.MkdirAll(dir, 0755))

	h, err := env.manager.Ensure(key)
	require.NoError(t, err)

	p := env.manager.Poll(h)
	assert.Equal(t, domain.StateReady, p.State)
	assert.Equal(t, dir, p.LocalPath)
	assert.Equal(t, 1.0, p.Fraction)
	assert.Equal(t, 0, env.source.totalCalls())

	select {
	case <-h.Done():
	default:
		t.Fatal("ready handle should be done")
	}

	h2, err := env.manager.Ensure(key)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, h2.State())
	assert.Equal(t, 0, env.source.totalCalls())
	assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.acquisitions.WithLabelValues(domain.OutcomeCached)))
}

func TestEnsure_SuccessfulAcquisition(t *testing.T) {
	payload := zipBytes(t, "X_Color.png", "X_Roughness.png", "X_NormalGL.png")
	env := newTestEnv(t, payload)
	key := testKey("X")

	h, err := env.manager.Ensure(key)
	require.NoError(t, err)

	dir, err := wait(t, h)
	require.NoError(t, err)
	assert.Equal(t, env.fs.ExtractDir(key), dir)
	assert.FileExists(t, filepath.Join(dir, "X_Color.png"))
	assert.NoFileExists(t, env.fs.ArchivePath(key))
	assert.NoDirExists(t, env.fs.StagingDir(key))

	p := env.manager.Poll(h)
	assert.Equal(t, domain.StateReady, p.State)
	assert.Equal(t, 1.0, p.Fraction)
	assert.Equal(t, int64(len(payload)), p.BytesDownloaded)
	assert.Equal(t, int64(len(payload)), p.BytesTotal)
	assert.Empty(t, p.Error)

	assert.Equal(t, []string{event.NameAcquisitionStarted, event.NameAcquisitionReady}, env.events.names())
	assert.Equal(t, float64(len(payload)), testutil.ToFloat64(env.metrics.bytesDownloaded))
	assert.Equal(t, float64(0), testutil.ToFloat64(env.metrics.inFlight))

	again, err := env.manager.Ensure(key)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, again.State())
	assert.Equal(t, 1, env.source.callCount(key))
}

func TestEnsure_ConcurrentCallsShareOneDownload(t *testing.T) {
	env := newTestEnv(t, zipBytes(t, "A_Color.png"))
	gate := make(chan struct{})
	env.source.set(func(s *fakeSource) { s.gate = gate })
	key := testKey("A")

	const callers = 16
	handles := make([]*Handle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := env.manager.Ensure(key)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range handles[1:] {
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, domain.StateDownloading, handles[0].State())

	close(gate)
	_, err := wait(t, handles[0])
	require.NoError(t, err)
	assert.Equal(t, 1, env.source.callCount(key))
	assert.Equal(t, float64(callers-1), testutil.ToFloat64(env.metrics.deduplicated))
}

func TestEnsure_DifferentKeysRunIndependently(t *testing.T) {
	env := newTestEnv(t, zipBytes(t, "M_Color.png"))
	gate := make(chan struct{})
	env.source.set(func(s *fakeSource) { s.gate = gate })

	h1, err := env.manager.Ensure(testKey("One"))
	require.NoError(t, err)
	h2, err := env.manager.Ensure(domain.AssetKey{Identifier: "One", Resolution: domain.Resolution4K})
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)

	require.Eventually(t, func() bool { return env.source.totalCalls() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.StateDownloading, h1.State())
	assert.Equal(t, domain.StateDownloading, h2.State())

	close(gate)
	_, err = wait(t, h1)
	require.NoError(t, err)
	_, err = wait(t, h2)
	require.NoError(t, err)
	assert.NotEqual(t, h1.Progress().LocalPath, h2.Progress().LocalPath)
}

func TestEnsure_NetworkFailureMidStream(t *testing.T) {
	payload := zipBytes(t, "N_Color.png", "N_Roughness.png")
	env := newTestEnv(t, payload)
	env.source.set(func(s *fakeSource) { s.failAfter = len(payload) / 2 })
	key := testKey("N")

	h, err := env.manager.Ensure(key)
	require.NoError(t, err)

	_, err = wait(t, h)
	require.Error(t, err)
	assert.True(t, domain.IsNetwork(err))
	assert.ErrorIs(t, err, errConnReset)

	p := env.manager.Poll(h)
	assert.Equal(t, domain.StateFailed, p.State)
	assert.Contains(t, p.Error, "connection reset")
	assert.Equal(t, int64(len(payload)/2), p.BytesDownloaded)
	assert.InDelta(t, float64(len(payload)/2)/float64(len(payload)), p.Fraction, 1e-9)
	assert.NoFileExists(t, env.fs.ArchivePath(key))
	assert.NoDirExists(t, env.fs.ExtractDir(key))
	assert.Equal(t, []string{event.NameAcquisitionStarted, event.NameAcquisitionFailed}, env.events.names())
}

func TestEnsure_OpenFailureIsNetworkError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.source.set(func(s *fakeSource) { s.openErr = errConnReset })

	h, err := env.manager.Ensure(testKey("Down"))
	require.NoError(t, err)

	_, err = wait(t, h)
	assert.True(t, domain.IsNetwork(err))
	assert.Equal(t, domain.StateFailed, h.State())
	assert.Equal(t, 0.0, h.Progress().Fraction)
}

func TestEnsure_TruncatedDownload(t *testing.T) {
	payload := zipBytes(t, "T_Color.png")
	env := newTestEnv(t, payload)
	env.source.set(func(s *fakeSource) { s.reportSize = int64(len(payload) + 100) })
	key := testKey("T")

	h, err := env.manager.Ensure(key)
	require.NoError(t, err)

	_, err = wait(t, h)
	assert.ErrorIs(t, err, domain.ErrTruncated)
	assert.True(t, domain.IsNetwork(err))
	assert.NoFileExists(t, env.fs.ArchivePath(key))
	assert.NoDirExists(t, env.fs.ExtractDir(key))
}

func TestEnsure_CorruptArchiveLeavesNothingAndRetries(t *testing.T) {
	tests := []struct {
		name    string
		payload func(t *testing.T) []byte
		wantErr error
	}{
		{
			name:    "not a zip",
			payload: func(t *testing.T) []byte { return []byte("<html>rate limited</html>") },
			wantErr: domain.ErrNotZipArchive,
		},
		{
			name:    "zero files",
			payload: func(t *testing.T) []byte { return zipBytes(t) },
			wantErr: domain.ErrEmptyArchive,
		},
		{
			name: "truncated zip",
			payload: func(t *testing.T) []byte {
				b := zipBytes(t, "C_Color.png", "C_Roughness.png")
				return b[:len(b)-30]
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.payload(t))
			key := testKey("C")

			h, err := env.manager.Ensure(key)
			require.NoError(t, err)

			_, err = wait(t, h)
			require.Error(t, err)
			assert.True(t, domain.IsArchive(err), "got %v", err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, domain.StateFailed, h.State())
			assert.NoDirExists(t, env.fs.ExtractDir(key))
			assert.NoDirExists(t, env.fs.StagingDir(key))
			assert.NoFileExists(t, env.fs.ArchivePath(key))

			good := zipBytes(t, "C_Color.png")
			env.source.set(func(s *fakeSource) { s.payload = good })

			retry, err := env.manager.Ensure(key)
			require.NoError(t, err)
			assert.NotSame(t, h, retry)

			_, err = wait(t, retry)
			require.NoError(t, err)
			assert.Equal(t, 2, env.source.callCount(key))
			assert.Equal(t, domain.StateFailed, h.State())
		})
	}
}

func TestPoll_ProgressIsMonotonic(t *testing.T) {
	payload := zipBytes(t, "P_Color.png", "P_Roughness.png", "P_NormalGL.png", "P_Displacement.png")
	env := newTestEnv(t, payload)
	env.source.set(func(s *fakeSource) {
		s.chunk = 256
		s.delay = time.Millisecond
	})

	h, err := env.manager.Ensure(testKey("P"))
	require.NoError(t, err)

	var fractions []float64
	var states []domain.CacheState
	for {
		p := env.manager.Poll(h)
		fractions = append(fractions, p.Fraction)
		states = append(states, p.State)
		if p.State.Terminal() {
			break
		}
		time.Sleep(500 * time.Microsecond)
	}

	require.Equal(t, domain.StateReady, states[len(states)-1])
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1], "poll %d", i)
	}
	for i, s := range states {
		if s == domain.StateExtracting || s == domain.StateReady {
			assert.Equal(t, 1.0, fractions[i])
		}
	}
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
}

func TestPoll_UnknownTotalReportsZeroWhileDownloading(t *testing.T) {
	env := newTestEnv(t, zipBytes(t, "U_Color.png"))
	gate := make(chan struct{})
	env.source.set(func(s *fakeSource) {
		s.reportSize = -1
		s.gate = gate
	})

	h, err := env.manager.Ensure(testKey("U"))
	require.NoError(t, err)

	p := env.manager.Poll(h)
	assert.Equal(t, domain.StateDownloading, p.State)
	assert.Equal(t, 0.0, p.Fraction)
	assert.Equal(t, int64(0), p.BytesTotal)

	close(gate)
	_, err = wait(t, h)
	require.NoError(t, err)
	assert.Equal(t, 1.0, env.manager.Poll(h).Fraction)
	assert.Equal(t, int64(0), env.manager.Poll(h).BytesTotal)
}

func TestCancel_DuringDownload(t *testing.T) {
	env := newTestEnv(t, zipBytes(t, "K_Color.png"))
	gate := make(chan struct{})
	env.source.set(func(s *fakeSource) { s.gate = gate })
	key := testKey("K")

	h, err := env.manager.Ensure(key)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.source.callCount(key) == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.True(t, env.manager.Cancel(h))
	assert.Equal(t, domain.StateNotStarted, h.State())
	assert.Empty(t, env.manager.Poll(h).Error)
	assert.NoFileExists(t, env.fs.ArchivePath(key))
	assert.NoDirExists(t, env.fs.ExtractDir(key))

	_, err = wait(t, h)
	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.Equal(t, []string{event.NameAcquisitionStarted, event.NameAcquisitionCancelled}, env.events.names())

	assert.False(t, env.manager.Cancel(h))

	env.source.set(func(s *fakeSource) { s.gate = nil })
	retry, err := env.manager.Ensure(key)
	require.NoError(t, err)
	assert.NotSame(t, h, retry)
	_, err = wait(t, retry)
	require.NoError(t, err)
}

func TestEnsure_AfterCancelStartsFreshAttempt(t *testing.T) {
	env := newTestEnv(t, zipBytes(t, "K_Color.png"))
	gate := make(chan struct{})
	env.source.set(func(s *fakeSource) { s.gate = gate })
	release := env.events.holdOn(event.NameAcquisitionCancelled)
	key := testKey("K")

	h, err := env.manager.Ensure(key)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.source.callCount(key) == 1 }, 2*time.Second, 5*time.Millisecond)

	cancelled := make(chan bool, 1)
	go func() { cancelled <- env.manager.Cancel(h) }()

	// The worker is parked in its cancelled event with done still open
	require.Eventually(t, func() bool {
		return len(env.events.names()) == 2 && h.State() == domain.StateNotStarted
	}, 2*time.Second, 5*time.Millisecond)
	require.False(t, h.finished())

	env.source.set(func(s *fakeSource) { s.gate = nil })
	retry, err := env.manager.Ensure(key)
	require.NoError(t, err)
	assert.NotSame(t, h, retry)
	assert.Equal(t, domain.StateDownloading, retry.State())

	// The new attempt does not download until the old worker has stopped
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, env.source.callCount(key))

	close(release)
	assert.True(t, <-cancelled)

	_, err = wait(t, h)
	assert.ErrorIs(t, err, domain.ErrCancelled)

	dir, err := wait(t, retry)
	require.NoError(t, err)
	assert.Equal(t, env.fs.ExtractDir(key), dir)
	assert.Equal(t, 2, env.source.callCount(key))
	assert.FileExists(t, filepath.Join(dir, "K_Color.png"))
}

func TestCancel_FinishedHandle(t *testing.T) {
	env := newTestEnv(t, nil)
	key := testKey("Done")
	require.NoError(t, os.MkdirAll(env.fs.ExtractDir(key), 0755))

	h, err := env.manager.Ensure(key)
	require.NoError(t, err)
	assert.False(t, env.manager.Cancel(h))
	assert.False(t, env.manager.Cancel(nil))
	assert.Equal(t, domain.StateReady, h.State())
}

func TestEnsure_DownloadTimeout(t *testing.T) {
	env := newTestEnv(t, zipBytes(t, "S_Color.png"), withTimeout(50*time.Millisecond))
	env.source.set(func(s *fakeSource) { s.gate = make(chan struct{}) })

	h, err := env.manager.Ensure(testKey("S"))
	require.NoError(t, err)

	_, err = wait(t, h)
	require.Error(t, err)
	assert.True(t, domain.IsNetwork(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.StateFailed, h.State())
}

func TestEnsure_InsufficientSpace(t *testing.T) {
	payload := zipBytes(t, "Big_Color.png")
	space := &fakeSpace{hasSpace: false}
	env := newTestEnv(t, payload, withSpace(space))
	key := testKey("Big")

	h, err := env.manager.Ensure(key)
	require.NoError(t, err)

	_, err = wait(t, h)
	assert.ErrorIs(t, err, domain.ErrInsufficientSpace)
	assert.True(t, domain.IsFilesystem(err))
	assert.NoFileExists(t, env.fs.ArchivePath(key))
	assert.Equal(t, []int64{int64(len(payload))}, space.asked)
}

func TestEnsure_InvalidKey(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.manager.Ensure(domain.AssetKey{Resolution: domain.Resolution1K})
	assert.ErrorIs(t, err, domain.ErrInvalidKey)

	_, err = env.manager.Ensure(domain.AssetKey{Identifier: "A", Resolution: "3K"})
	assert.ErrorIs(t, err, domain.ErrInvalidResolution)

	_, err = env.manager.Ensure(domain.AssetKey{Identifier: "../etc", Resolution: domain.Resolution1K})
	assert.ErrorIs(t, err, domain.ErrInvalidKey)
	assert.Equal(t, 0, env.source.totalCalls())
}

func TestInUse(t *testing.T) {
	env := newTestEnv(t, zipBytes(t, "K_Color.png"))
	gate := make(chan struct{})
	env.source.set(func(s *fakeSource) { s.gate = gate })
	key := testKey("K")

	h, err := env.manager.Ensure(key)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.source.callCount(key) == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.True(t, env.manager.InUse(env.fs.ArchivePath(key)))
	assert.True(t, env.manager.InUse(env.fs.StagingDir(key)))
	assert.False(t, env.manager.InUse(env.fs.ExtractDir(key)))
	assert.False(t, env.manager.InUse(env.fs.ArchivePath(testKey("Other"))))

	close(gate)
	_, err = wait(t, h)
	require.NoError(t, err)
	assert.False(t, env.manager.InUse(env.fs.ArchivePath(key)))
	assert.False(t, env.manager.InUse(env.fs.StagingDir(key)))
}

func TestStatusAndSnapshot(t *testing.T) {
	env := newTestEnv(t, zipBytes(t, "B_Color.png"))

	_, ok := env.manager.Status(testKey("Never"))
	assert.False(t, ok)

	onDisk := testKey("OnDisk")
	require.NoError(t, os.MkdirAll(env.fs.ExtractDir(onDisk), 0755))
	p, ok := env.manager.Status(onDisk)
	require.True(t, ok)
	assert.Equal(t, domain.StateReady, p.State)
	_, tracked := env.manager.Lookup(onDisk)
	assert.False(t, tracked)

	h, err := env.manager.Ensure(testKey("B"))
	require.NoError(t, err)
	_, err = wait(t, h)
	require.NoError(t, err)

	p, ok = env.manager.Status(testKey("B"))
	require.True(t, ok)
	assert.Equal(t, domain.StateReady, p.State)

	_, err = env.manager.Ensure(onDisk)
	require.NoError(t, err)

	snap := env.manager.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "B", snap[0].Identifier)
	assert.Equal(t, "OnDisk", snap[1].Identifier)
}

func TestClose_CancelsInFlightAndRejectsNewWork(t *testing.T) {
	env := newTestEnv(t, zipBytes(t, "Q_Color.png"))
	env.source.set(func(s *fakeSource) { s.gate = make(chan struct{}) })
	key := testKey("Q")

	h, err := env.manager.Ensure(key)
	require.NoError(t, err)

	env.manager.Close()
	assert.Equal(t, domain.StateNotStarted, h.State())
	assert.NoFileExists(t, env.fs.ArchivePath(key))

	_, err = env.manager.Ensure(key)
	assert.ErrorIs(t, err, ErrClosed)
}
