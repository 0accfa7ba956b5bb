package rule

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

type cacheEntry struct {
	outputs map[string]string
	expires time.Time
}

// Cached wraps a Provider with a TTL-bounded invocation cache. Rules are pure
// over their inputs, so identical invocations within the TTL are served from
// memory. When the cache is full, the first expired entry found is evicted;
// if none is expired, the new result is not cached.
type Cached struct {
	inner      Provider
	ttl        time.Duration
	maxEntries int

	mu    sync.RWMutex
	cache map[string]cacheEntry

	rulesMu      sync.RWMutex
	rules        []Descriptor
	rulesFetched time.Time
}

// NewCached wraps a provider with an invocation cache.
func NewCached(inner Provider, ttl time.Duration, maxEntries int) *Cached {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cached{
		inner:      inner,
		ttl:        ttl,
		maxEntries: maxEntries,
		cache:      make(map[string]cacheEntry),
	}
}

// ListRules returns the descriptor list, refreshed at most once per TTL.
func (c *Cached) ListRules(ctx context.Context) ([]Descriptor, error) {
	c.rulesMu.RLock()
	fresh := time.Since(c.rulesFetched) < c.ttl && c.rules != nil
	rules := c.rules
	c.rulesMu.RUnlock()
	if fresh {
		return rules, nil
	}

	rules, err := c.inner.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	c.rulesMu.Lock()
	c.rules = rules
	c.rulesFetched = time.Now()
	c.rulesMu.Unlock()
	return rules, nil
}

// Invoke returns the cached result for an identical invocation, or runs the
// rule and caches the outcome.
func (c *Cached) Invoke(ctx context.Context, name string, inputs map[string]string) (map[string]string, error) {
	key := invocationKey(name, inputs)

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.outputs, nil
	}

	outputs, err := c.inner.Invoke(ctx, name, inputs)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.cache) >= c.maxEntries {
		c.evictExpiredLocked()
	}
	if len(c.cache) < c.maxEntries {
		c.cache[key] = cacheEntry{outputs: outputs, expires: time.Now().Add(c.ttl)}
	}
	c.mu.Unlock()
	return outputs, nil
}

// Len returns the number of cached invocations. For testing.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *Cached) evictExpiredLocked() {
	now := time.Now()
	for key, entry := range c.cache {
		if now.After(entry.expires) {
			delete(c.cache, key)
		}
	}
}

// invocationKey derives a stable cache key from the rule name and its inputs.
func invocationKey(name string, inputs map[string]string) string {
	fields := make([]string, 0, len(inputs))
	for field := range inputs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	h := sha256.New()
	h.Write([]byte(name))
	for _, field := range fields {
		h.Write([]byte{0})
		h.Write([]byte(field))
		h.Write([]byte{0})
		h.Write([]byte(inputs[field]))
	}
	return name + ":" + hex.EncodeToString(h.Sum(nil)[:16])
}
