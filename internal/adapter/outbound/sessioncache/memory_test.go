package sessioncache

import (
	"context"
	"testing"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/anonymize"
)

func TestMemory_PutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := New(MinLifetime)
	mapping := anonymize.RestoreMapping{"__email_1__": "alice@example.com"}

	if err := c.Put(ctx, "sess-1", mapping); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := c.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got["__email_1__"] != "alice@example.com" {
		t.Errorf("Get() = %v, want mapping with alice@example.com", got)
	}
}

func TestMemory_GetMissing(t *testing.T) {
	t.Parallel()

	c := New(MinLifetime)
	if _, err := c.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemory_LifetimeFlooredAtMinimum(t *testing.T) {
	t.Parallel()

	c := New(time.Second)
	if c.lifetime != MinLifetime {
		t.Errorf("lifetime = %v, want floored to %v", c.lifetime, MinLifetime)
	}
}

func TestMemory_SweepEvictsExpired(t *testing.T) {
	t.Parallel()

	c := &Memory{entries: map[string]entry{}, lifetime: MinLifetime, stopChan: make(chan struct{})}
	c.entries["expired"] = entry{mapping: anonymize.RestoreMapping{}, expiresAt: time.Now().Add(-time.Minute)}
	c.entries["fresh"] = entry{mapping: anonymize.RestoreMapping{}, expiresAt: time.Now().Add(time.Hour)}

	c.sweep()

	if c.Size() != 1 {
		t.Errorf("Size() after sweep = %d, want 1", c.Size())
	}
	if _, err := c.Get(context.Background(), "fresh"); err != nil {
		t.Errorf("fresh entry should survive sweep, got err: %v", err)
	}
}

func TestMemory_StopIdempotent(t *testing.T) {
	t.Parallel()

	c := New(MinLifetime)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartCleanup(ctx, 10*time.Millisecond)
	c.Stop()
	c.Stop()
}
