// Package sqlite implements the key-value storage contract on an embedded
// SQLite database, the zero-dependency backend for development and
// single-node deployments. Same table shape as the PostgreSQL backend
// with expiry tracked as unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
)

// ErrOpen is returned when the database cannot be opened.
var ErrOpen = errors.New("sqlite: open failed")

const schema = `
CREATE TABLE IF NOT EXISTS kv_records (
    key        TEXT PRIMARY KEY,
    value      BLOB NOT NULL,
    metadata   TEXT,
    expires_at INTEGER
);
CREATE INDEX IF NOT EXISTS kv_records_expires_at_idx ON kv_records (expires_at);
`

// Store implements kv.Store and kv.Purger on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: storage path is required", ErrOpen)
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	return &Store{db: db}, nil
}

func nowMilli() int64 {
	return time.Now().UTC().UnixMilli()
}

// Get returns the value at key, or kv.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, _, err := s.GetWithMetadata(ctx, key)
	return value, err
}

// GetWithMetadata returns the value and stored metadata at key.
func (s *Store) GetWithMetadata(ctx context.Context, key string) ([]byte, json.RawMessage, error) {
	if key == "" {
		return nil, nil, kv.ErrEmptyKey
	}

	var value []byte
	var metadata sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT value, metadata FROM kv_records
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, nowMilli(),
	).Scan(&value, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var meta json.RawMessage
	if metadata.Valid && metadata.String != "" {
		meta = json.RawMessage(metadata.String)
	}
	return value, meta, nil
}

// Put writes a value with optional TTL and metadata.
func (s *Store) Put(ctx context.Context, key string, value []byte, opts kv.PutOptions) error {
	if key == "" {
		return kv.ErrEmptyKey
	}

	var expiresAt sql.NullInt64
	if opts.TTL > 0 {
		expiresAt = sql.NullInt64{Int64: nowMilli() + opts.TTL.Milliseconds(), Valid: true}
	}
	var metadata sql.NullString
	if len(opts.Metadata) > 0 {
		metadata = sql.NullString{String: string(opts.Metadata), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_records (key, value, metadata, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			metadata = excluded.metadata,
			expires_at = excluded.expires_at`,
		key, value, metadata, expiresAt,
	)
	return err
}

// Delete removes a key; deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_records WHERE key = ?`, key)
	return err
}

// List returns one exact page of keys in lexicographic order using keyset
// pagination; the cursor is the last key of the previous page.
func (s *Store) List(ctx context.Context, opts kv.ListOptions) (kv.ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = kv.DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, metadata FROM kv_records
		WHERE substr(key, 1, length(?)) = ?
		  AND key > ?
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key
		LIMIT ?`,
		opts.Prefix, opts.Prefix, opts.Cursor, nowMilli(), limit+1,
	)
	if err != nil {
		return kv.ListResult{}, err
	}
	defer rows.Close()

	var keys []kv.KeyInfo
	for rows.Next() {
		var info kv.KeyInfo
		var metadata sql.NullString
		if err := rows.Scan(&info.Name, &metadata); err != nil {
			return kv.ListResult{}, err
		}
		if metadata.Valid && metadata.String != "" {
			info.Metadata = json.RawMessage(metadata.String)
		}
		keys = append(keys, info)
	}
	if err := rows.Err(); err != nil {
		return kv.ListResult{}, err
	}

	result := kv.ListResult{Keys: keys, Complete: true}
	if len(keys) > limit {
		result.Keys = keys[:limit]
		result.Cursor = keys[limit-1].Name
		result.Complete = false
	}
	return result, nil
}

// PurgeExpired removes rows whose TTL has lapsed; run from the scheduler.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM kv_records
		WHERE expires_at IS NOT NULL AND expires_at <= ?`, nowMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
