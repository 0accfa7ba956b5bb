// Package editor runs the editing session between tree mutations and the
// persistence layer: edits apply to the in-memory layout immediately, while a
// trailing-edge debounced save carries them to the store. A retried save with
// the same payload is deduplicated through an idempotency store.
package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/askelund/forma/model"
)

// SaveReceipt is the cached outcome of one completed save.
type SaveReceipt struct {
	Page    string    `json:"page"`
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
}

// IdempotencyStore deduplicates retried saves. The key format is
// "save:{layoutKey}:{key}".
type IdempotencyStore interface {
	// Check looks up a previous save by key. If the key exists and the
	// payload hash matches, it returns the cached receipt. If the key exists
	// but the hash differs, it returns a conflict error.
	Check(ctx context.Context, key string, payloadHash string) (receipt *SaveReceipt, found bool, err error)

	// Store saves a receipt keyed by the idempotency key with a TTL.
	Store(ctx context.Context, key string, payloadHash string, receipt SaveReceipt, ttl time.Duration) error
}

// idempotencyEntry is the stored value for an idempotency key.
type idempotencyEntry struct {
	PayloadHash string      `json:"payload_hash"`
	Receipt     SaveReceipt `json:"receipt"`
}

// FormatSaveKey builds the standard save idempotency key.
func FormatSaveKey(layoutKey, key string) string {
	return fmt.Sprintf("save:%s:%s", layoutKey, key)
}

// --- MemoryIdempotencyStore ---

// MemoryIdempotencyStore is an in-memory IdempotencyStore with TTL support.
// Suitable for testing and single-instance deployments.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
}

type memEntry struct {
	data      idempotencyEntry
	expiresAt time.Time
}

// NewMemoryIdempotencyStore creates a new in-memory idempotency store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]*memEntry),
	}
}

// Check looks up a cached receipt. Returns conflict error if the hash differs.
func (s *MemoryIdempotencyStore) Check(_ context.Context, key string, payloadHash string) (*SaveReceipt, bool, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	if entry.data.PayloadHash != payloadHash {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q already used with different payload", key),
		)
	}

	receipt := entry.data.Receipt
	return &receipt, true, nil
}

// Store saves a receipt with TTL.
func (s *MemoryIdempotencyStore) Store(_ context.Context, key string, payloadHash string, receipt SaveReceipt, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memEntry{
		data: idempotencyEntry{
			PayloadHash: payloadHash,
			Receipt:     receipt,
		},
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// --- RedisIdempotencyStore ---

// RedisIdempotencyStore is a Redis-backed IdempotencyStore with TTL.
type RedisIdempotencyStore struct {
	client redis.Cmdable
}

// NewRedisIdempotencyStore creates a new Redis-backed idempotency store.
func NewRedisIdempotencyStore(client redis.Cmdable) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// Check looks up a cached receipt in Redis. Returns conflict error if the
// hash differs.
func (s *RedisIdempotencyStore) Check(ctx context.Context, key string, payloadHash string) (*SaveReceipt, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var entry idempotencyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal idempotency entry %q: %w", key, err)
	}

	if entry.PayloadHash != payloadHash {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q already used with different payload", key),
		)
	}

	return &entry.Receipt, true, nil
}

// HealthCheck pings Redis.
func (s *RedisIdempotencyStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Store saves a receipt in Redis with TTL.
func (s *RedisIdempotencyStore) Store(ctx context.Context, key string, payloadHash string, receipt SaveReceipt, ttl time.Duration) error {
	entry := idempotencyEntry{
		PayloadHash: payloadHash,
		Receipt:     receipt,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal idempotency entry: %w", err)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}
