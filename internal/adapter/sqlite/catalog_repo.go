package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vertextoedge/texture-cache/internal/domain"
)

// UpsertAssets inserts or refreshes listing entries in one transaction
func (s *Store) UpsertAssets(assets []domain.AssetSummary) error {
	if len(assets) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO assets (identifier, link, thumbnail_url, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			link = excluded.link,
			thumbnail_url = excluded.thumbnail_url,
			last_seen_at = excluded.last_seen_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := toMillis(time.Now())
	for _, a := range assets {
		if a.Identifier == "" {
			continue
		}
		if _, err := stmt.Exec(a.Identifier, a.Link, a.ThumbnailURL, now); err != nil {
			return fmt.Errorf("failed to upsert asset %s: %w", a.Identifier, err)
		}
	}

	return tx.Commit()
}

// GetAsset returns a catalog entry, or nil if unknown
func (s *Store) GetAsset(identifier string) (*domain.CatalogAsset, error) {
	query := `
		SELECT identifier, link, thumbnail_url, last_seen_at
		FROM assets
		WHERE identifier = ?
	`

	asset := &domain.CatalogAsset{}
	var lastSeen int64
	err := s.db.QueryRow(query, identifier).Scan(
		&asset.Identifier, &asset.Link, &asset.ThumbnailURL, &lastSeen,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	asset.LastSeenAt = fromMillis(lastSeen)
	return asset, nil
}
