// Package postgres implements the key-value storage contract on
// PostgreSQL. One table holds every record; expiry is an expires_at
// column filtered on read and reaped by the purge job; listing uses
// keyset pagination so pages stay exact and ordered.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
)

var (
	// ErrConnection is returned when the connection pool cannot be built.
	ErrConnection = errors.New("postgres: connection failed")

	// ErrSchema is returned when schema setup fails.
	ErrSchema = errors.New("postgres: schema setup failed")
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	// Host is the database host.
	Host string

	// Port is the database port.
	Port int

	// Database is the database name.
	Database string

	// User is the database user.
	User string

	// Password is the database password.
	Password string

	// SSLMode is the SSL mode (disable, require, verify-ca, verify-full).
	SSLMode string

	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32

	// MinConns is the minimum number of connections in the pool.
	MinConns int32

	// MaxConnLifetime is the maximum lifetime of a connection.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum idle time of a connection.
	MaxConnIdleTime time.Duration

	// ConnectTimeout is the timeout for establishing a connection.
	ConnectTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "canopy",
		User:            "canopy",
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// DSN returns the connection string for PostgreSQL.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}

const schema = `
CREATE TABLE IF NOT EXISTS kv_records (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    metadata   JSONB,
    expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS kv_records_expires_at_idx
    ON kv_records (expires_at) WHERE expires_at IS NOT NULL;
`

// Store implements kv.Store and kv.Purger on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New builds the pool, verifies connectivity, and ensures the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return &Store{pool: pool}, nil
}

// Get returns the value at key, or kv.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, _, err := s.GetWithMetadata(ctx, key)
	return value, err
}

// GetWithMetadata returns the value and stored metadata at key. Expired
// rows are invisible even before the purge job removes them.
func (s *Store) GetWithMetadata(ctx context.Context, key string) ([]byte, json.RawMessage, error) {
	if key == "" {
		return nil, nil, kv.ErrEmptyKey
	}

	var value []byte
	var metadata []byte
	err := s.pool.QueryRow(ctx, `
		SELECT value, metadata FROM kv_records
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		key,
	).Scan(&value, &metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return value, metadata, nil
}

// Put writes a value with optional TTL and metadata.
func (s *Store) Put(ctx context.Context, key string, value []byte, opts kv.PutOptions) error {
	if key == "" {
		return kv.ErrEmptyKey
	}

	var expiresAt *time.Time
	if opts.TTL > 0 {
		t := time.Now().UTC().Add(opts.TTL)
		expiresAt = &t
	}
	var metadata []byte
	if len(opts.Metadata) > 0 {
		metadata = opts.Metadata
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_records (key, value, metadata, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			metadata = EXCLUDED.metadata,
			expires_at = EXCLUDED.expires_at`,
		key, value, metadata, expiresAt,
	)
	return err
}

// Delete removes a key; deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM kv_records WHERE key = $1`, key)
	return err
}

// List returns one exact page of keys in lexicographic order using keyset
// pagination; the cursor is the last key of the previous page.
func (s *Store) List(ctx context.Context, opts kv.ListOptions) (kv.ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = kv.DefaultListLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT key, metadata FROM kv_records
		WHERE starts_with(key, $1)
		  AND key > $2
		  AND (expires_at IS NULL OR expires_at > now())
		ORDER BY key
		LIMIT $3`,
		opts.Prefix, opts.Cursor, limit+1,
	)
	if err != nil {
		return kv.ListResult{}, err
	}
	defer rows.Close()

	var keys []kv.KeyInfo
	for rows.Next() {
		var info kv.KeyInfo
		var metadata []byte
		if err := rows.Scan(&info.Name, &metadata); err != nil {
			return kv.ListResult{}, err
		}
		info.Metadata = metadata
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
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM kv_records
		WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies connectivity; used by health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
