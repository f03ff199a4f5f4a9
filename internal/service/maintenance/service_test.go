package maintenance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vertextoedge/texture-cache/internal/adapter/filesystem"
	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/port"
	"go.uber.org/zap"
)

// mockHistoryRepository implements port.HistoryRepository for testing
type mockHistoryRepository struct {
	mu            sync.Mutex
	cleanupCount  int
	cleanupErr    error
	cleanupCalled int
	cleanupMaxAge time.Duration
}

func (m *mockHistoryRepository) RecordAcquisition(rec *domain.AcquisitionRecord) error {
	return nil
}
func (m *mockHistoryRepository) ListAcquisitions(limit int) ([]*domain.AcquisitionRecord, error) {
	return nil, nil
}
func (m *mockHistoryRepository) CleanupAcquisitions(olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupCalled++
	m.cleanupMaxAge = olderThan
	return m.cleanupCount, m.cleanupErr
}

func (m *mockHistoryRepository) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanupCalled
}

// mockFileSystem counts CleanStale calls. Other methods are not used.
type mockFileSystem struct {
	port.FileSystem
	mu               sync.Mutex
	cleanStaleCount  int
	cleanStaleErr    error
	cleanStaleCalled int
}

func (m *mockFileSystem) CleanStale(olderThan time.Duration, keep func(path string) bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanStaleCalled++
	return m.cleanStaleCount, m.cleanStaleErr
}

func (m *mockFileSystem) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanStaleCalled
}

func TestService_New(t *testing.T) {
	logger := zap.NewNop()

	// nil config uses defaults
	s := New(nil, &mockHistoryRepository{}, &mockFileSystem{}, logger)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.config.CleanupInterval != time.Hour {
		t.Errorf("CleanupInterval = %v, want %v", s.config.CleanupInterval, time.Hour)
	}
	if s.config.HistoryMaxAge != 30*24*time.Hour {
		t.Errorf("HistoryMaxAge = %v, want %v", s.config.HistoryMaxAge, 30*24*time.Hour)
	}

	// zero fields are filled in
	s = New(&Config{CleanupInterval: 5 * time.Minute}, nil, &mockFileSystem{}, logger)
	if s.config.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want %v", s.config.CleanupInterval, 5*time.Minute)
	}
	if s.config.TempFileMaxAge != 24*time.Hour {
		t.Errorf("TempFileMaxAge = %v, want %v", s.config.TempFileMaxAge, 24*time.Hour)
	}
}

func TestService_RunOnce(t *testing.T) {
	history := &mockHistoryRepository{cleanupCount: 3}
	fs := &mockFileSystem{cleanStaleCount: 2}
	cfg := &Config{CleanupInterval: time.Hour, TempFileMaxAge: time.Hour, HistoryMaxAge: 48 * time.Hour}
	s := New(cfg, history, fs, zap.NewNop())

	result, err := s.RunOnce()
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if result.StaleEntries != 2 || result.HistoryEntries != 3 {
		t.Errorf("RunOnce() = %+v, want 2 stale and 3 history entries", result)
	}
	if history.cleanupMaxAge != 48*time.Hour {
		t.Errorf("CleanupAcquisitions called with %v, want %v", history.cleanupMaxAge, 48*time.Hour)
	}
}

func TestService_RunOnceContinuesAfterError(t *testing.T) {
	fsErr := errors.New("permission denied")
	history := &mockHistoryRepository{cleanupCount: 4}
	fs := &mockFileSystem{cleanStaleErr: fsErr}
	s := New(nil, history, fs, zap.NewNop())

	result, err := s.RunOnce()
	if !errors.Is(err, fsErr) {
		t.Errorf("RunOnce() error = %v, want %v", err, fsErr)
	}
	if history.calls() != 1 {
		t.Error("CleanupAcquisitions was not called after CleanStale failed")
	}
	if result.HistoryEntries != 4 {
		t.Errorf("HistoryEntries = %d, want 4", result.HistoryEntries)
	}
}

func TestService_RunOnceWithoutHistory(t *testing.T) {
	fs := &mockFileSystem{cleanStaleCount: 1}
	s := New(nil, nil, fs, zap.NewNop())

	result, err := s.RunOnce()
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if result.StaleEntries != 1 || result.HistoryEntries != 0 {
		t.Errorf("RunOnce() = %+v", result)
	}
}

func TestService_StartStop(t *testing.T) {
	history := &mockHistoryRepository{}
	fs := &mockFileSystem{}

	cfg := &Config{
		CleanupInterval: 10 * time.Millisecond,
		TempFileMaxAge:  time.Hour,
		HistoryMaxAge:   time.Hour,
	}
	s := New(cfg, history, fs, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	// the startup pass plus at least one tick
	deadline := time.Now().Add(time.Second)
	for fs.calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Stop()")
	}

	if fs.calls() < 2 {
		t.Errorf("CleanStale called %d times, want at least 2", fs.calls())
	}
	if history.calls() < 2 {
		t.Errorf("CleanupAcquisitions called %d times, want at least 2", history.calls())
	}
}

func TestService_DoubleStart(t *testing.T) {
	s := New(nil, nil, &mockFileSystem{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if running || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Start(ctx); err == nil {
		t.Error("second Start() should fail while running")
	}
	s.Stop()
}

func TestService_CleansRealCacheDirectory(t *testing.T) {
	root := t.TempDir()
	fs, err := filesystem.NewManager(root)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	key := domain.AssetKey{Identifier: "Bricks001", Resolution: domain.Resolution2K}
	old := time.Now().Add(-48 * time.Hour)

	archive := fs.ArchivePath(key)
	if err := os.WriteFile(archive, []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}
	staging := fs.StagingDir(key)
	if err := os.MkdirAll(filepath.Join(staging, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	ready := fs.ExtractDir(domain.AssetKey{Identifier: "Wood051", Resolution: domain.Resolution1K})
	if err := os.MkdirAll(ready, 0755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{archive, staging, ready} {
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatal(err)
		}
	}

	s := New(&Config{TempFileMaxAge: 24 * time.Hour}, nil, fs, zap.NewNop())
	result, err := s.RunOnce()
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if result.StaleEntries != 2 {
		t.Errorf("StaleEntries = %d, want 2", result.StaleEntries)
	}
	if fs.FileExists(archive) || fs.DirExists(staging) {
		t.Error("stale archive or staging directory was not removed")
	}
	if !fs.DirExists(ready) {
		t.Error("ready extraction directory was removed")
	}
}

func TestService_KeepsEntriesInUse(t *testing.T) {
	fs, err := filesystem.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	active := domain.AssetKey{Identifier: "Slow001", Resolution: domain.Resolution8K}
	abandoned := domain.AssetKey{Identifier: "Gone001", Resolution: domain.Resolution8K}
	old := time.Now().Add(-48 * time.Hour)
	for _, p := range []string{fs.ArchivePath(active), fs.ArchivePath(abandoned)} {
		if err := os.WriteFile(p, []byte("partial"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatal(err)
		}
	}

	var asked []string
	s := New(&Config{
		TempFileMaxAge: 24 * time.Hour,
		InUse:          func(path string) bool {
			asked = append(asked, path)
			return path == fs.ArchivePath(active)
		},
	}, nil, fs, zap.NewNop())

	result, err := s.RunOnce()
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if result.StaleEntries != 1 {
		t.Errorf("StaleEntries = %d, want 1", result.StaleEntries)
	}
	if !fs.FileExists(fs.ArchivePath(active)) {
		t.Error("archive of a running acquisition was removed")
	}
	if fs.FileExists(fs.ArchivePath(abandoned)) {
		t.Error("abandoned archive was not removed")
	}
	if len(asked) != 2 {
		t.Errorf("InUse asked %d times, want 2", len(asked))
	}
}
