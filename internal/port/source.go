package port

import (
	"context"
	"io"

	"github.com/vertextoedge/texture-cache/internal/domain"
)

// ArchiveSource opens archive byte streams for asset keys
type ArchiveSource interface {
	// ArchiveURL returns the deterministic source URL for a key
	ArchiveURL(key domain.AssetKey) string

	// OpenArchive starts streaming the archive for key.
	// Returns the body and its size, or -1 when the size is unknown.
	OpenArchive(ctx context.Context, key domain.AssetKey) (io.ReadCloser, int64, error)
}

// ListingSource searches the asset library
type ListingSource interface {
	// Search returns the listing entries for a query page.
	// Unparseable markup yields an empty result, not an error.
	Search(ctx context.Context, query string, offset, count int) ([]domain.AssetSummary, error)
}

// ThumbnailSource fetches thumbnail images
type ThumbnailSource interface {
	FetchThumbnail(ctx context.Context, url string) (io.ReadCloser, error)
}

// Extractor unpacks archives
type Extractor interface {
	// Extract unpacks archivePath into destDir and returns the extracted file paths.
	// On error destDir does not exist afterwards.
	Extract(ctx context.Context, archivePath, destDir string) ([]string, error)
}

// MaterialBuilder turns an extraction directory into a material description
type MaterialBuilder interface {
	Build(dir, name string) (*domain.Material, error)
}
