package port

import (
	"time"

	"github.com/vertextoedge/texture-cache/internal/domain"
)

// CatalogRepository remembers listing entries seen by searches
type CatalogRepository interface {
	// UpsertAssets inserts or refreshes listing entries
	UpsertAssets(assets []domain.AssetSummary) error

	// GetAsset returns a catalog entry, or nil if unknown
	GetAsset(identifier string) (*domain.CatalogAsset, error)
}

// HistoryRepository records finished acquisition attempts.
// It is a log only; the filesystem decides whether an asset is ready.
type HistoryRepository interface {
	// RecordAcquisition stores a finished attempt and sets its ID
	RecordAcquisition(rec *domain.AcquisitionRecord) error

	// ListAcquisitions returns the most recent attempts, newest first
	ListAcquisitions(limit int) ([]*domain.AcquisitionRecord, error)

	// CleanupAcquisitions removes attempts finished before now-olderThan
	CleanupAcquisitions(olderThan time.Duration) (int, error)
}

// Store is the full persistence surface
type Store interface {
	CatalogRepository
	HistoryRepository
	Ping() error
	Close() error
}
