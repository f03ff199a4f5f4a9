package filesystem

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/port"
)

const (
	archiveExt    = ".zip"
	stagingSuffix = ".extracting"
	tempSuffix    = ".downloading"
)

// Thumbnail names that would shadow cache entries or a database
var (
	reservedSuffixes = []string{archiveExt, stagingSuffix, tempSuffix, ".db", "-wal", "-shm", "-journal"}
	extractDirName   = regexp.MustCompile(`(?i)_[1248]k$`)
)

// Manager handles the local cache directory
type Manager struct {
	rootDir    string
	bufferSize int
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 64*1024)
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(rootDir string, bufferSize int) (*Manager, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("cache root dir is empty")
	}

	// Ensure root directory exists
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}

	return &Manager{
		rootDir:    rootDir,
		bufferSize: bufferSize,
	}, nil
}

// RootDir returns the cache root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// BufferSize returns the copy buffer size in bytes
func (m *Manager) BufferSize() int {
	return m.bufferSize
}

// ArchivePath returns <root>/{id}_{res}.zip
func (m *Manager) ArchivePath(key domain.AssetKey) string {
	return filepath.Join(m.rootDir, key.BaseName()+archiveExt)
}

// ExtractDir returns <root>/{id}_{res}
func (m *Manager) ExtractDir(key domain.AssetKey) string {
	return filepath.Join(m.rootDir, key.BaseName())
}

// StagingDir returns <root>/{id}_{res}.extracting
func (m *Manager) StagingDir(key domain.AssetKey) string {
	return filepath.Join(m.rootDir, key.BaseName()+stagingSuffix)
}

// ThumbnailPath returns <root>/<basename of the URL path>.
// URLs without a usable basename, or whose basename could collide with an
// archive, staging or extraction entry or a database file, are keyed by a
// hash of the URL.
func (m *Manager) ThumbnailPath(rawURL string) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	name = sanitizeName(name)
	if name == "" || isReservedName(name) {
		name = fmt.Sprintf("thumb-%016x", xxhash.Sum64String(rawURL))
	}
	return filepath.Join(m.rootDir, name)
}

func isReservedName(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range reservedSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return extractDirName.MatchString(name)
}

func sanitizeName(name string) string {
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	return strings.TrimLeft(name, ".")
}

// DirExists reports whether path is an existing directory
func (m *Manager) DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FileExists reports whether path is an existing regular file
func (m *Manager) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// CreateFile creates (truncating) a file for writing
func (m *Manager) CreateFile(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return f, nil
}

// WriteFileAtomic writes content to a temp file and renames it to path
func (m *Manager) WriteFileAtomic(path string, reader io.Reader) (int64, error) {
	tempPath := path + tempSuffix
	f, err := m.CreateFile(tempPath)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(f, reader, buf)
	if err != nil {
		f.Close()
		os.Remove(tempPath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return written, nil
}

// Rename moves a file or directory
func (m *Manager) Rename(from, to string) error {
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}

// RemoveFile removes a file
func (m *Manager) RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// RemoveAll removes a directory tree
func (m *Manager) RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete directory: %w", err)
	}
	return nil
}

// GetCacheSize returns total size of cached files
func (m *Manager) GetCacheSize() (int64, error) {
	var size int64
	err := filepath.WalkDir(m.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}

// CleanStale removes archives, staging directories and temp files left
// behind by interrupted acquisitions. Only direct children of the root are
// considered. Extraction directories are never touched, nor is any path
// for which keep returns true. keep may be nil.
func (m *Manager) CleanStale(olderThan time.Duration, keep func(path string) bool) (int, error) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache dir: %w", err)
	}

	count := 0
	threshold := time.Now().Add(-olderThan)
	for _, entry := range entries {
		name := entry.Name()
		stale := false
		switch {
		case entry.IsDir() && strings.HasSuffix(name, stagingSuffix):
			stale = true
		case !entry.IsDir() && (strings.HasSuffix(name, archiveExt) || strings.HasSuffix(name, tempSuffix)):
			stale = true
		}
		if !stale {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(threshold) {
			continue
		}
		path := filepath.Join(m.rootDir, name)
		if keep != nil && keep(path) {
			continue
		}
		if removeErr := os.RemoveAll(path); removeErr == nil {
			count++
		}
	}
	return count, nil
}
