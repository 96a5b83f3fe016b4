package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTTLMap_GetCachesLoadedValue(t *testing.T) {
	m := NewTTLMap(time.Minute)
	var calls int32

	load := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		v, err := m.Get(context.Background(), "k", load)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v != "value" {
			t.Errorf("expected %q, got %v", "value", v)
		}
	}
	if calls != 1 {
		t.Errorf("expected load to run once, ran %d times", calls)
	}
}

func TestTTLMap_ExpiresAfterTTL(t *testing.T) {
	m := NewTTLMap(time.Millisecond)
	var calls int32
	load := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}

	if _, err := m.Get(context.Background(), "k", load); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := m.Get(context.Background(), "k", load); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected a reload after TTL expiry, load ran %d times", calls)
	}
}

func TestTTLMap_InvalidateForcesReload(t *testing.T) {
	m := NewTTLMap(time.Minute)
	var calls int32
	load := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}

	m.Get(context.Background(), "k", load)
	m.Invalidate("k")
	m.Get(context.Background(), "k", load)

	if calls != 2 {
		t.Errorf("expected invalidate to force a reload, load ran %d times", calls)
	}
}

func TestTTLMap_InvalidatePrefixOnlyEvictsMatchingKeys(t *testing.T) {
	m := NewTTLMap(time.Minute)
	m.Set("app1\x00a", "1")
	m.Set("app1\x00b", "2")
	m.Set("app2\x00a", "3")

	m.InvalidatePrefix("app1\x00")

	if _, ok := m.lookup("app1\x00a"); ok {
		t.Error("expected app1\\x00a to be evicted")
	}
	if _, ok := m.lookup("app1\x00b"); ok {
		t.Error("expected app1\\x00b to be evicted")
	}
	if _, ok := m.lookup("app2\x00a"); !ok {
		t.Error("expected app2's entry to survive")
	}
}

func TestTTLMap_GetPropagatesLoadError(t *testing.T) {
	m := NewTTLMap(time.Minute)
	wantErr := errors.New("boom")
	_, err := m.Get(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
	if _, ok := m.lookup("k"); ok {
		t.Error("a failed load must not populate the cache")
	}
}

func TestTTLMap_ConcurrentMissesCollapseIntoOneLoad(t *testing.T) {
	m := NewTTLMap(time.Minute)
	var calls int32
	block := make(chan struct{})

	load := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-block
		return "v", nil
	}

	var wg sync.WaitGroup
	const n = 8
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			m.Get(context.Background(), "k", load)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(block)
	wg.Wait()

	if calls != 1 {
		t.Errorf("expected singleflight to collapse concurrent misses into one load, got %d", calls)
	}
}
