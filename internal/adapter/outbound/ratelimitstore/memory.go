// Package ratelimitstore provides outbound implementations of the
// ratelimit.RateLimiter port (in-process and Redis-backed).
package ratelimitstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/ratelimit"
)

// Memory implements ratelimit.RateLimiter using GCRA in memory.
// Thread-safe for concurrent access. Includes background cleanup to
// prevent unbounded memory growth across tenant/application/surface keys.
type Memory struct {
	cells           map[string]time.Time // Theoretical Arrival Time per key
	mu              sync.Mutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxTTL          time.Duration
}

// New creates a new in-memory rate limiter with default cleanup settings.
// Default cleanup interval: 5 minutes, default maxTTL: 1 hour.
func New() *Memory {
	return NewWithConfig(5*time.Minute, 1*time.Hour)
}

// NewWithConfig creates a new in-memory rate limiter with custom cleanup
// settings. cleanupInterval is how often to run cleanup; maxTTL is the
// maximum age of a key before removal.
func NewWithConfig(cleanupInterval, maxTTL time.Duration) *Memory {
	return &Memory{
		cells:           make(map[string]time.Time),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		maxTTL:          maxTTL,
	}
}

// Allow checks if a request is allowed under the given rate limit config
// using GCRA (Generic Cell Rate Algorithm) for smooth rate limiting.
func (r *Memory) Allow(ctx context.Context, key string, config ratelimit.RateLimitConfig) (ratelimit.RateLimitResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if config.Rate <= 0 {
		config.Rate = 1
	}
	emission := config.Period / time.Duration(config.Rate)

	if config.Burst <= 0 {
		config.Burst = config.Rate
	}
	burstOffset := time.Duration(config.Burst) * emission

	tat, exists := r.cells[key]
	if !exists || tat.Before(now) {
		tat = now
	}

	allowAt := tat.Add(-burstOffset)

	if now.Before(allowAt) {
		return ratelimit.RateLimitResult{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: allowAt.Sub(now),
			ResetAfter: tat.Sub(now),
		}, nil
	}

	newTAT := tat.Add(emission)
	if newTAT.Before(now) {
		newTAT = now.Add(emission)
	}
	r.cells[key] = newTAT

	remaining := int((burstOffset - newTAT.Sub(now)) / emission)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > config.Burst {
		remaining = config.Burst
	}

	return ratelimit.RateLimitResult{
		Allowed:    true,
		Remaining:  remaining,
		RetryAfter: 0,
		ResetAfter: newTAT.Sub(now),
	}, nil
}

// StartCleanup starts the background cleanup goroutine. It stops when ctx
// is cancelled or Stop is called.
func (r *Memory) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

func (r *Memory) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.maxTTL)
	cleaned := 0
	for key, tat := range r.cells {
		if tat.Before(cutoff) {
			delete(r.cells, key)
			cleaned++
		}
	}
	if cleaned > 0 {
		slog.Debug("rate limiter cleanup completed", "cleaned_keys", cleaned, "remaining_keys", len(r.cells))
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (r *Memory) Stop() {
	r.once.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}

// Size returns the current number of tracked keys.
func (r *Memory) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cells)
}

var _ ratelimit.RateLimiter = (*Memory)(nil)
