package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/texture-cache/internal/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestManager_Layout(t *testing.T) {
	m := newTestManager(t)
	key := domain.AssetKey{Identifier: "Bricks001", Resolution: domain.Resolution2K}

	assert.Equal(t, filepath.Join(m.RootDir(), "Bricks001_2K.zip"), m.ArchivePath(key))
	assert.Equal(t, filepath.Join(m.RootDir(), "Bricks001_2K"), m.ExtractDir(key))
	assert.Equal(t, filepath.Join(m.RootDir(), "Bricks001_2K.extracting"), m.StagingDir(key))

	other := domain.AssetKey{Identifier: "Bricks001", Resolution: domain.Resolution4K}
	assert.NotEqual(t, m.ExtractDir(key), m.ExtractDir(other))
}

func TestManager_ThumbnailPath(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "basename",
			url:  "https://acg-media.struffelproductions.com/file/ambientCG-Web/media/thumbnail/256-PNG/Bricks001.png",
			want: "Bricks001.png",
		},
		{
			name: "query stripped",
			url:  "https://example.com/thumbs/Wood051.jpg?v=3",
			want: "Wood051.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.Join(m.RootDir(), tt.want), m.ThumbnailPath(tt.url))
		})
	}

	reserved := []string{
		"http://cdn.example/any/catalog.db",
		"http://cdn.example/catalog.db-wal",
		"http://cdn.example/catalog.db-shm",
		"http://cdn.example/Bricks001_2K.zip",
		"http://cdn.example/Bricks001_2K",
		"http://cdn.example/Bricks001_8k",
		"http://cdn.example/Bricks001_2K.extracting",
		"http://cdn.example/Bricks001.png.downloading",
	}
	key := domain.AssetKey{Identifier: "Bricks001", Resolution: domain.Resolution2K}
	for _, u := range reserved {
		got := m.ThumbnailPath(u)
		assert.True(t, strings.HasPrefix(filepath.Base(got), "thumb-"), "%s -> %s", u, got)
		assert.NotEqual(t, m.ArchivePath(key), got)
		assert.NotEqual(t, m.ExtractDir(key), got)
	}

	hashed := filepath.Base(m.ThumbnailPath("https://example.com/"))
	assert.True(t, strings.HasPrefix(hashed, "thumb-"), hashed)
	assert.Equal(t, hashed, filepath.Base(m.ThumbnailPath("https://example.com/")))
}

func TestManager_WriteFileAtomic(t *testing.T) {
	m := newTestManager(t)
	dest := filepath.Join(m.RootDir(), "thumb.png")

	n, err := m.WriteFileAtomic(dest, strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.True(t, m.FileExists(dest))
	assert.False(t, m.FileExists(dest+tempSuffix))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestManager_RemoveMissingIsNotError(t *testing.T) {
	m := newTestManager(t)

	assert.NoError(t, m.RemoveFile(filepath.Join(m.RootDir(), "missing.zip")))
	assert.NoError(t, m.RemoveAll(filepath.Join(m.RootDir(), "missing")))
}

func TestManager_CleanStale(t *testing.T) {
	m := newTestManager(t)
	root := m.RootDir()
	old := time.Now().Add(-48 * time.Hour)

	mustWrite := func(name string, mtime time.Time) {
		p := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}
	mustMkdir := func(name string, mtime time.Time) {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(p, 0755))
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}

	mustWrite("Old_1K.zip", old)
	mustWrite("Fresh_1K.zip", time.Now())
	mustWrite("thumb.png.downloading", old)
	mustWrite("thumb.png", old)
	mustMkdir("Old_2K.extracting", old)
	mustMkdir("Done_2K", old)

	count, err := m.CleanStale(24*time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.False(t, m.FileExists(filepath.Join(root, "Old_1K.zip")))
	assert.False(t, m.FileExists(filepath.Join(root, "thumb.png.downloading")))
	assert.False(t, m.DirExists(filepath.Join(root, "Old_2K.extracting")))
	assert.True(t, m.FileExists(filepath.Join(root, "Fresh_1K.zip")))
	assert.True(t, m.FileExists(filepath.Join(root, "thumb.png")))
	assert.True(t, m.DirExists(filepath.Join(root, "Done_2K")))
}

func TestManager_CleanStaleKeepsActivePaths(t *testing.T) {
	m := newTestManager(t)
	old := time.Now().Add(-48 * time.Hour)
	key := domain.AssetKey{Identifier: "Slow001", Resolution: domain.Resolution8K}
	other := domain.AssetKey{Identifier: "Gone001", Resolution: domain.Resolution8K}

	for _, p := range []string{m.ArchivePath(key), m.ArchivePath(other)} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
		require.NoError(t, os.Chtimes(p, old, old))
	}
	require.NoError(t, os.MkdirAll(m.StagingDir(key), 0755))
	require.NoError(t, os.Chtimes(m.StagingDir(key), old, old))

	keep := func(path string) bool {
		return path == m.ArchivePath(key) || path == m.StagingDir(key)
	}
	count, err := m.CleanStale(24*time.Hour, keep)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.True(t, m.FileExists(m.ArchivePath(key)))
	assert.True(t, m.DirExists(m.StagingDir(key)))
	assert.False(t, m.FileExists(m.ArchivePath(other)))
}

func TestManager_GetCacheSize(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Join(m.RootDir(), "A_1K"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(m.RootDir(), "A_1K", "A_Color.png"), make([]byte, 100), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(m.RootDir(), "t.png"), make([]byte, 20), 0644))

	size, err := m.GetCacheSize()
	require.NoError(t, err)
	assert.Equal(t, int64(120), size)
}

func TestNewDiskUsage(t *testing.T) {
	u := newDiskUsage(1000, 250)
	assert.Equal(t, uint64(750), u.Used)
	assert.InDelta(t, 75.0, u.UsedPct, 1e-9)

	zero := newDiskUsage(0, 0)
	assert.Equal(t, 0.0, zero.UsedPct)
}
