//go:build sqlite

package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"oncepaste/internal/storage"
)

// Store implements storage.Engine using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open initializes the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := initialize(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func initialize(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kv_expires_at ON kv (expires_at);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SetEx inserts or replaces the value under key.
func (s *Store) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	if value == nil {
		value = []byte{}
	}

	const q = `
INSERT INTO kv (key, value, expires_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    value=excluded.value,
    expires_at=excluded.expires_at;
`
	_, err := s.db.ExecContext(ctx, q, key, value, s.now().Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("save value: %w", err)
	}
	return nil
}

// GetDel deletes the row for key and returns its value in one statement.
func (s *Store) GetDel(ctx context.Context, key string) ([]byte, error) {
	const q = `DELETE FROM kv WHERE key = ? RETURNING value, expires_at;`

	var (
		value     []byte
		expiresAt int64
	)
	if err := s.db.QueryRowContext(ctx, q, key).Scan(&value, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNil
		}
		return nil, fmt.Errorf("delete value: %w", err)
	}
	if expiresAt <= s.now().UnixNano() {
		return nil, storage.ErrNil
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// DeleteExpired removes all expired rows.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	const q = `DELETE FROM kv WHERE expires_at <= ?;`
	res, err := s.db.ExecContext(ctx, q, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(rows), nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
