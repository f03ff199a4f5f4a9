package sqlite

import (
	"time"

	"github.com/vertextoedge/texture-cache/internal/domain"
)

// RecordAcquisition stores a finished attempt and sets its ID
func (s *Store) RecordAcquisition(rec *domain.AcquisitionRecord) error {
	query := `
		INSERT INTO acquisitions (
			identifier, resolution, outcome, bytes, error, local_path, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.FinishedAt
	}

	result, err := s.db.Exec(query,
		rec.Identifier, rec.Resolution.String(), rec.Outcome, rec.Bytes,
		rec.Error, rec.LocalPath, toMillis(rec.StartedAt), toMillis(rec.FinishedAt))
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// ListAcquisitions returns the most recent attempts, newest first
func (s *Store) ListAcquisitions(limit int) ([]*domain.AcquisitionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, identifier, resolution, outcome, bytes, error, local_path, started_at, finished_at
		FROM acquisitions
		ORDER BY finished_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AcquisitionRecord
	for rows.Next() {
		rec := &domain.AcquisitionRecord{}
		var resolution string
		var startedAt, finishedAt int64
		if err := rows.Scan(
			&rec.ID, &rec.Identifier, &resolution, &rec.Outcome, &rec.Bytes,
			&rec.Error, &rec.LocalPath, &startedAt, &finishedAt,
		); err != nil {
			return nil, err
		}
		rec.Resolution = domain.Resolution(resolution)
		rec.StartedAt = fromMillis(startedAt)
		rec.FinishedAt = fromMillis(finishedAt)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CleanupAcquisitions removes attempts finished before now-olderThan
func (s *Store) CleanupAcquisitions(olderThan time.Duration) (int, error) {
	cutoff := toMillis(time.Now().Add(-olderThan))

	result, err := s.db.Exec(`DELETE FROM acquisitions WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
