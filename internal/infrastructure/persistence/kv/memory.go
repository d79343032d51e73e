package kv

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/canopy-press/canopy-engagement/pkg/timeutil"
)

// Memory is an in-process Store for development and tests. Expiry is
// driven by an injectable clock so tests can step past TTLs; listing
// pages over the sorted key set with the last key of a page as cursor.
type Memory struct {
	clock timeutil.Clock

	mu      sync.RWMutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	value     []byte
	metadata  json.RawMessage
	expiresAt time.Time // zero means no expiry
}

// MemoryOption configures the in-memory store.
type MemoryOption func(*Memory)

// WithClock injects a clock; tests use timeutil.FixedClock.
func WithClock(c timeutil.Clock) MemoryOption {
	return func(m *Memory) {
		if c != nil {
			m.clock = c
		}
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		clock:   timeutil.SystemClock{},
		records: make(map[string]memoryRecord),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) live(rec memoryRecord) bool {
	return rec.expiresAt.IsZero() || rec.expiresAt.After(m.clock.Now())
}

// Get returns the value at key, or ErrNotFound.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	value, _, err := m.GetWithMetadata(ctx, key)
	return value, err
}

// GetWithMetadata returns the value and stored metadata at key.
func (m *Memory) GetWithMetadata(ctx context.Context, key string) ([]byte, json.RawMessage, error) {
	if key == "" {
		return nil, nil, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()

	if !ok || !m.live(rec) {
		return nil, nil, ErrNotFound
	}
	return cloneBytes(rec.value), cloneBytes(rec.metadata), nil
}

// Put writes a value with optional TTL and metadata.
func (m *Memory) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := memoryRecord{
		value:    cloneBytes(value),
		metadata: cloneBytes(opts.Metadata),
	}
	if opts.TTL > 0 {
		rec.expiresAt = m.clock.Now().Add(opts.TTL)
	}

	m.mu.Lock()
	m.records[key] = rec
	m.mu.Unlock()
	return nil
}

// Delete removes a key; deleting an absent key is a no-op.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

// List returns one page of keys in lexicographic order.
func (m *Memory) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	names := make([]string, 0, len(m.records))
	for name, rec := range m.records {
		if !strings.HasPrefix(name, opts.Prefix) || !m.live(rec) {
			continue
		}
		if opts.Cursor != "" && name <= opts.Cursor {
			continue
		}
		names = append(names, name)
	}
	m.mu.RUnlock()

	sort.Strings(names)

	result := ListResult{Complete: true}
	if len(names) > limit {
		names = names[:limit]
		result.Complete = false
		result.Cursor = names[len(names)-1]
	}

	m.mu.RLock()
	for _, name := range names {
		result.Keys = append(result.Keys, KeyInfo{
			Name:     name,
			Metadata: cloneBytes(m.records[name].metadata),
		})
	}
	m.mu.RUnlock()

	return result, nil
}

// Len reports the number of live records; test helper.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.records {
		if m.live(rec) {
			n++
		}
	}
	return n
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
