package port

import (
	"io"
	"time"

	"github.com/vertextoedge/texture-cache/internal/domain"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// FileSystem defines the cache directory layout and operations.
// All archives, extraction directories and thumbnails live directly under RootDir.
type FileSystem interface {
	// RootDir returns the cache root directory
	RootDir() string

	// ArchivePath returns the download target for a key: {id}_{res}.zip
	ArchivePath(key domain.AssetKey) string

	// ExtractDir returns the final extraction directory for a key: {id}_{res}
	ExtractDir(key domain.AssetKey) string

	// StagingDir returns the directory an archive is unpacked into before
	// being renamed to ExtractDir
	StagingDir(key domain.AssetKey) string

	// ThumbnailPath returns the local path for a thumbnail URL
	ThumbnailPath(url string) string

	// DirExists reports whether path exists and is a directory
	DirExists(path string) bool

	// FileExists reports whether path exists and is a regular file
	FileExists(path string) bool

	// CreateFile creates (truncating) a file for writing
	CreateFile(path string) (io.WriteCloser, error)

	// WriteFileAtomic writes reader to a temp file and renames it into place
	WriteFileAtomic(path string, reader io.Reader) (int64, error)

	// Rename moves a file or directory
	Rename(from, to string) error

	// RemoveFile removes a file; a missing file is not an error
	RemoveFile(path string) error

	// RemoveAll removes a directory tree; a missing path is not an error
	RemoveAll(path string) error

	// GetCacheSize returns total size of files under the root
	GetCacheSize() (int64, error)

	// GetDiskUsage returns disk usage statistics for the root
	GetDiskUsage() (*DiskUsage, error)

	// CleanStale removes leftover archives and staging directories older than
	// the specified duration, skipping paths for which keep returns true.
	// Returns the number of entries removed.
	CleanStale(olderThan time.Duration, keep func(path string) bool) (int, error)
}
