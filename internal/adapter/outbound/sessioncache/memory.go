// Package sessioncache holds the restore-mapping session store behind
// the gateway integration API's process-input/process-output pair: the
// anonymize step on process-input returns an opaque session_id, and
// process-output looks the restore mapping up by that id to undo the
// substitution before returning content to the caller.
package sessioncache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/anonymize"
)

// ErrNotFound is returned when a session_id has expired or never existed.
var ErrNotFound = errors.New("sessioncache: session not found")

// MinLifetime is the minimum time a session's restore mapping must
// survive, per the gateway integration contract.
const MinLifetime = 10 * time.Minute

type entry struct {
	mapping   anonymize.RestoreMapping
	expiresAt time.Time
}

// Memory is an in-process, TTL-bounded restore-mapping store. Thread-safe
// for concurrent access; a background goroutine evicts expired entries so
// memory use stays bounded under sustained anonymize traffic.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]entry
	lifetime time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// New builds a Memory session cache with the given per-session lifetime.
// lifetime is floored at MinLifetime.
func New(lifetime time.Duration) *Memory {
	if lifetime < MinLifetime {
		lifetime = MinLifetime
	}
	return &Memory{
		entries:  make(map[string]entry),
		lifetime: lifetime,
		stopChan: make(chan struct{}),
	}
}

// Put stores mapping under sessionID, refreshing its expiry.
func (m *Memory) Put(ctx context.Context, sessionID string, mapping anonymize.RestoreMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sessionID] = entry{mapping: mapping, expiresAt: time.Now().Add(m.lifetime)}
	return nil
}

// Get retrieves the restore mapping for sessionID. Returns ErrNotFound if
// the session has expired or never existed; expired entries are not
// deleted here, the background sweep handles that.
func (m *Memory) Get(ctx context.Context, sessionID string) (anonymize.RestoreMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, ErrNotFound
	}
	return e.mapping, nil
}

// StartCleanup starts the background eviction goroutine.
func (m *Memory) StartCleanup(ctx context.Context, interval time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, id)
		}
	}
}

// Stop stops the background eviction goroutine. Safe to call multiple times.
func (m *Memory) Stop() {
	m.once.Do(func() { close(m.stopChan) })
	m.wg.Wait()
}

// Size returns the number of sessions currently tracked, expired or not.
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
