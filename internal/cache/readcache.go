// Package cache keeps a best-effort local mirror of which notification
// identities have been read. It is never authoritative: the backend's read
// state wins, and every failure here is logged and swallowed so a broken
// cache can never take the feed down with it.
package cache

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS read_marks (
	identity TEXT PRIMARY KEY,
	read_at  TIMESTAMP NOT NULL
);`

// Store is a sqlite-backed read-state mirror.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open opens (or creates) the cache at path. Use ":memory:" for tests.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: opening %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: creating schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MarkRead records that identity was read at the given time. A repeated mark
// keeps the earliest timestamp, matching the feed's monotonic read state.
func (s *Store) MarkRead(identity string, at time.Time) {
	_, err := s.db.Exec(
		`INSERT INTO read_marks (identity, read_at) VALUES (?, ?)
		 ON CONFLICT(identity) DO NOTHING`,
		identity, at.UTC(),
	)
	if err != nil {
		s.logger.Warn("read mark not cached", zap.String("identity", identity), zap.Error(err))
	}
}

// IsRead reports whether identity has a cached read mark.
func (s *Store) IsRead(identity string) bool {
	var count int
	if err := s.db.Get(&count, `SELECT COUNT(*) FROM read_marks WHERE identity = ?`, identity); err != nil {
		s.logger.Warn("read mark lookup failed", zap.Error(err))
		return false
	}
	return count > 0
}

// ReadMarks returns every cached identity with its read time. On failure it
// returns an empty map: the caller then simply trusts the backend alone.
func (s *Store) ReadMarks() map[string]time.Time {
	rows := []struct {
		Identity string    `db:"identity"`
		ReadAt   time.Time `db:"read_at"`
	}{}
	if err := s.db.Select(&rows, `SELECT identity, read_at FROM read_marks`); err != nil {
		s.logger.Warn("read marks load failed", zap.Error(err))
		return map[string]time.Time{}
	}

	marks := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		marks[r.Identity] = r.ReadAt
	}
	return marks
}
