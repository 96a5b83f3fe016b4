// Package cache implements the four read-through, write-invalidate
// per-process caches (§4.9): auth, keyword, template, risk-config. Each
// wraps a TTLMap keyed by a caller-supplied string, with refresh
// serialized through golang.org/x/sync/singleflight so a TTL expiry
// under load triggers exactly one backing call, not a thundering herd.
// Stale reads during refresh are allowed by design: a reader that loses
// the singleflight race gets the fresh value, but nothing blocks a
// concurrent reader of a different key.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value   interface{}
	expires time.Time
}

// TTLMap is a process-local read-through cache with a fixed TTL per
// entry and single-flight-guarded refresh.
type TTLMap struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]entry

	group singleflight.Group
}

// NewTTLMap builds a TTLMap with the given per-entry lifetime.
func NewTTLMap(ttl time.Duration) *TTLMap {
	return &TTLMap{ttl: ttl, entries: make(map[string]entry)}
}

// Get returns the cached value for key if present and unexpired,
// otherwise calls load exactly once per concurrently-missing key
// (singleflight), stores the result, and returns it.
func (m *TTLMap) Get(ctx context.Context, key string, load func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if v, ok := m.lookup(key); ok {
		return v, nil
	}
	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		if v, ok := m.lookup(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		m.Set(key, v)
		return v, nil
	})
	return v, err
}

func (m *TTLMap) lookup(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.value, true
}

// Set writes key unconditionally, for a read-through load and for
// write-invalidate callers that want to seed the fresh value instead of
// merely evicting.
func (m *TTLMap) Set(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expires: time.Now().Add(m.ttl)}
}

// Invalidate evicts key, forcing the next Get to call load again.
func (m *TTLMap) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// InvalidatePrefix evicts every key with the given prefix, for
// invalidation scoped to an application id rather than a single key.
func (m *TTLMap) InvalidatePrefix(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.entries, k)
		}
	}
}
