// Package browser pages through the asset library listing.
package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/port"
)

// ThumbnailQueue accepts thumbnails for background fetching
type ThumbnailQueue interface {
	EnqueueAll(assets []domain.AssetSummary) int
}

// Service searches the listing, remembers results in the catalog and
// schedules their thumbnails
type Service struct {
	listing  port.ListingSource
	catalog  port.CatalogRepository
	queue    ThumbnailQueue
	pageSize int
	logger   *zap.Logger
}

// New creates a new browser Service. catalog and queue may be nil.
func New(listing port.ListingSource, catalog port.CatalogRepository, queue ThumbnailQueue, pageSize int, logger *zap.Logger) *Service {
	if pageSize <= 0 {
		pageSize = 24
	}
	return &Service{
		listing:  listing,
		catalog:  catalog,
		queue:    queue,
		pageSize: pageSize,
		logger:   logger,
	}
}

// PageSize returns the number of results requested per page
func (s *Service) PageSize() int {
	return s.pageSize
}

// Search returns one zero-based page of results for query
func (s *Service) Search(ctx context.Context, query string, page int) ([]domain.AssetSummary, error) {
	if page < 0 {
		return nil, fmt.Errorf("invalid page %d", page)
	}

	assets, err := s.listing.Search(ctx, query, page*s.pageSize, s.pageSize)
	if err != nil {
		return nil, err
	}

	if s.catalog != nil && len(assets) > 0 {
		if err := s.catalog.UpsertAssets(assets); err != nil {
			s.logger.Warn("failed to update catalog",
				zap.String("query", query),
				zap.Error(err))
		}
	}

	queued := 0
	if s.queue != nil {
		queued = s.queue.EnqueueAll(assets)
	}

	s.logger.Debug("search completed",
		zap.String("query", query),
		zap.Int("page", page),
		zap.Int("results", len(assets)),
		zap.Int("thumbnails_queued", queued))

	return assets, nil
}
