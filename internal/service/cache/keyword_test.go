package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/scanner"
)

type countingListSource struct {
	calls int32
}

func (s *countingListSource) ListLists(ctx context.Context, applicationID string, kind scanner.ListKind) ([]scanner.List, error) {
	atomic.AddInt32(&s.calls, 1)
	if kind == scanner.ListBlacklist {
		return []scanner.List{{ApplicationID: applicationID, Kind: kind, Name: "default", Keywords: []string{"bad"}}}, nil
	}
	return []scanner.List{{ApplicationID: applicationID, Kind: kind, Name: "default", Keywords: []string{"ok"}}}, nil
}

func TestKeywordCache_GetLoadsBothKindsOnce(t *testing.T) {
	src := &countingListSource{}
	c := NewKeywordCache(src, time.Minute)

	lists, err := c.Get(context.Background(), "app1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(lists.Blacklists) != 1 || len(lists.Whitelists) != 1 {
		t.Fatalf("expected one list of each kind, got %+v", lists)
	}
	if src.calls != 2 {
		t.Errorf("expected one ListLists call per kind, got %d", src.calls)
	}

	c.Get(context.Background(), "app1")
	if src.calls != 2 {
		t.Errorf("expected the second Get to hit the cache, calls=%d", src.calls)
	}
}

func TestKeywordCache_InvalidateScopedToApplication(t *testing.T) {
	src := &countingListSource{}
	c := NewKeywordCache(src, time.Minute)

	c.Get(context.Background(), "app1")
	c.Get(context.Background(), "app2")
	c.Invalidate("app1")
	c.Get(context.Background(), "app1")
	c.Get(context.Background(), "app2")

	if src.calls != 6 {
		t.Errorf("expected app1's invalidate to trigger only its own reload, calls=%d", src.calls)
	}
}
