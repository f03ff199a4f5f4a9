package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vertextoedge/texture-cache/internal/port"
)

// Store implements port.Store interface using SQLite
type Store struct {
	db *sql.DB
}

// Ensure Store implements port.Store
var _ port.Store = (*Store)(nil)

// Options tunes the connection
type Options struct {
	BusyTimeoutMs int
}

// Open opens a connection to the SQLite database, creating its directory
func Open(dbPath string) (*Store, error) {
	return OpenWithOptions(dbPath, Options{})
}

// OpenWithOptions opens the database with explicit options
func OpenWithOptions(dbPath string, opts Options) (*Store, error) {
	if opts.BusyTimeoutMs <= 0 {
		opts.BusyTimeoutMs = 5000
	}

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", dbPath, opts.BusyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeoutMs),
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		// Listing entries seen by searches
		`CREATE TABLE IF NOT EXISTS assets (
			identifier TEXT PRIMARY KEY,
			link TEXT NOT NULL,
			thumbnail_url TEXT NOT NULL,
			last_seen_at INTEGER NOT NULL
		)`,

		// One row per finished acquisition attempt
		`CREATE TABLE IF NOT EXISTS acquisitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identifier TEXT NOT NULL,
			resolution TEXT NOT NULL,
			outcome TEXT NOT NULL,
			bytes INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			local_path TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_assets_last_seen ON assets(last_seen_at)`,
		`CREATE INDEX IF NOT EXISTS idx_acquisitions_key ON acquisitions(identifier, resolution)`,
		`CREATE INDEX IF NOT EXISTS idx_acquisitions_finished ON acquisitions(finished_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, strings.TrimSpace(migration))
		}
	}

	return nil
}

// Timestamps are stored as unix milliseconds
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
