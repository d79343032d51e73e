// Package redis implements the key-value storage contract on Redis.
// Values and metadata are stored together in a JSON envelope per key,
// expiry uses native TTLs, and listing walks the keyspace with SCAN.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
)

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int

	// MaxRetries is the maximum number of retries before giving up.
	MaxRetries int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var (
	// ErrConnection is returned when the Redis connection fails.
	ErrConnection = errors.New("redis: connection failed")

	// ErrSerialization is returned when the stored envelope cannot be decoded.
	ErrSerialization = errors.New("redis: envelope decode failed")
)

// envelope packs a value and its metadata into one Redis string so both
// travel under single-key atomicity.
type envelope struct {
	V []byte          `json:"v"`
	M json.RawMessage `json:"m,omitempty"`
}

// Store implements kv.Store on Redis.
type Store struct {
	client *redis.Client
	config Config
}

// New creates a Store and verifies connectivity.
func New(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return &Store{client: client, config: cfg}, nil
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

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return env.V, env.M, nil
}

// Put writes a value with optional TTL and metadata.
func (s *Store) Put(ctx context.Context, key string, value []byte, opts kv.PutOptions) error {
	if key == "" {
		return kv.ErrEmptyKey
	}

	raw, err := json.Marshal(envelope{V: value, M: opts.Metadata})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return s.client.Set(ctx, key, raw, opts.TTL).Err()
}

// Delete removes a key; deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	return s.client.Del(ctx, key).Err()
}

// List walks the keyspace with SCAN. Redis cursors give at-least-once
// enumeration and approximate page sizes; every consumer of the listing
// (migration sweep, leaderboard build) is idempotent, so duplicates are
// harmless. Metadata is fetched for the page with a single MGET.
func (s *Store) List(ctx context.Context, opts kv.ListOptions) (kv.ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = kv.DefaultListLimit
	}

	var cursor uint64
	if opts.Cursor != "" {
		parsed, err := strconv.ParseUint(opts.Cursor, 10, 64)
		if err != nil {
			return kv.ListResult{}, fmt.Errorf("redis: bad list cursor %q: %w", opts.Cursor, err)
		}
		cursor = parsed
	}

	names, next, err := s.client.Scan(ctx, cursor, opts.Prefix+"*", int64(limit)).Result()
	if err != nil {
		return kv.ListResult{}, err
	}

	result := kv.ListResult{
		Cursor:   strconv.FormatUint(next, 10),
		Complete: next == 0,
	}
	if len(names) == 0 {
		return result, nil
	}

	raws, err := s.client.MGet(ctx, names...).Result()
	if err != nil {
		return kv.ListResult{}, err
	}
	for i, name := range names {
		info := kv.KeyInfo{Name: name}
		if str, ok := raws[i].(string); ok {
			var env envelope
			if err := json.Unmarshal([]byte(str), &env); err == nil {
				info.Metadata = env.M
			}
		}
		result.Keys = append(result.Keys, info)
	}
	return result, nil
}

// Close releases the client's connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping verifies connectivity; used by health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
