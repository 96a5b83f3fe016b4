package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
)

type countingRiskConfigSource struct {
	calls int32
}

func (s *countingRiskConfigSource) GetRiskTypeConfig(ctx context.Context, applicationID string) (policyconf.RiskTypeConfig, error) {
	atomic.AddInt32(&s.calls, 1)
	return policyconf.RiskTypeConfig{ApplicationID: applicationID, HighThreshold: 0.1, MediumThreshold: 0.4, LowThreshold: 0.7}, nil
}

func TestRiskConfigCache_GetCachesPerApplication(t *testing.T) {
	src := &countingRiskConfigSource{}
	c := NewRiskConfigCache(src, time.Minute)

	cfg, err := c.Get(context.Background(), "app1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.ApplicationID != "app1" {
		t.Errorf("expected app1, got %q", cfg.ApplicationID)
	}
	c.Get(context.Background(), "app1")
	if src.calls != 1 {
		t.Errorf("expected one backing call for two Gets, got %d", src.calls)
	}

	c.Get(context.Background(), "app2")
	if src.calls != 2 {
		t.Errorf("expected a distinct application to trigger its own load, calls=%d", src.calls)
	}
}

func TestRiskConfigCache_InvalidateForcesReload(t *testing.T) {
	src := &countingRiskConfigSource{}
	c := NewRiskConfigCache(src, time.Minute)

	c.Get(context.Background(), "app1")
	c.Invalidate("app1")
	c.Get(context.Background(), "app1")

	if src.calls != 2 {
		t.Errorf("expected Invalidate to force a reload, calls=%d", src.calls)
	}
}
