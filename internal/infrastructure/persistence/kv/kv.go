// Package kv defines the key-value storage contract the engagement engine
// runs on: single-key read/write atomicity, per-key TTL, opaque JSON
// metadata, and cursor-paged listing by prefix. No multi-key transactions
// and no compare-and-swap; callers are built around idempotent and
// additive operations instead.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Package errors.
var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("kv: key not found")
	// ErrEmptyKey is returned when an operation is given an empty key.
	ErrEmptyKey = errors.New("kv: empty key")
	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("kv: store closed")
)

// PutOptions carries the optional attributes of a write.
type PutOptions struct {
	// TTL expires the key after the given duration; zero means no expiry.
	TTL time.Duration
	// Metadata is an opaque JSON document stored alongside the value and
	// returned by GetWithMetadata and List.
	Metadata json.RawMessage
}

// ListOptions selects a page of keys.
type ListOptions struct {
	// Prefix filters keys; empty lists everything.
	Prefix string
	// Cursor resumes a previous page; empty starts from the beginning.
	Cursor string
	// Limit is a page-size hint. Backends may return slightly fewer or
	// more keys; zero applies the backend default.
	Limit int
}

// KeyInfo is one listed key with its metadata (nil when none was stored).
type KeyInfo struct {
	Name     string
	Metadata json.RawMessage
}

// ListResult is one page of keys.
type ListResult struct {
	Keys []KeyInfo
	// Cursor resumes after this page; meaningless when Complete.
	Cursor string
	// Complete reports that no further pages exist.
	Complete bool
}

// Store is the abstract key-value contract. Implementations must treat
// Delete of an absent key as a no-op and must not surface expired keys
// from any read path.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// GetWithMetadata returns the value and stored metadata at key.
	GetWithMetadata(ctx context.Context, key string) ([]byte, json.RawMessage, error)
	// Put writes a value with optional TTL and metadata.
	Put(ctx context.Context, key string, value []byte, opts PutOptions) error
	// Delete removes a key.
	Delete(ctx context.Context, key string) error
	// List returns one page of keys matching the options.
	List(ctx context.Context, opts ListOptions) (ListResult, error)
}

// Purger is implemented by SQL-backed stores whose expired rows need
// periodic removal; TTL-native backends do not implement it.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// DefaultListLimit is the page size used when ListOptions.Limit is zero.
const DefaultListLimit = 1000
