package httpmw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeSizer struct{ n int }

func (f fakeSizer) Size() int { return f.n }

type fakeAuditDepth struct {
	depth, capacity int
	dropped         int64
}

func (f fakeAuditDepth) ChannelDepth() int    { return f.depth }
func (f fakeAuditDepth) ChannelCapacity() int { return f.capacity }
func (f fakeAuditDepth) Dropped() int64       { return f.dropped }

func TestHealthChecker_Check_AllConfiguredAndHealthy(t *testing.T) {
	hc := NewHealthChecker(fakePinger{}, fakeSizer{n: 3}, fakeSizer{n: 5}, fakeAuditDepth{depth: 10, capacity: 1000}, "1.2.3")

	resp := hc.Check(context.Background())
	if resp.Status != "healthy" {
		t.Fatalf("expected healthy, got %q (%v)", resp.Status, resp.Checks)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("expected version to be threaded through, got %q", resp.Version)
	}
	if resp.Checks["store"] != "ok" {
		t.Errorf("expected store check ok, got %q", resp.Checks["store"])
	}
}

func TestHealthChecker_Check_UnreachableStoreIsUnhealthy(t *testing.T) {
	hc := NewHealthChecker(fakePinger{err: errors.New("no such host")}, nil, nil, nil, "")

	resp := hc.Check(context.Background())
	if resp.Status != "unhealthy" {
		t.Fatalf("expected unhealthy when the store ping fails, got %q", resp.Status)
	}
}

func TestHealthChecker_Check_AuditBackpressureIsUnhealthy(t *testing.T) {
	hc := NewHealthChecker(fakePinger{}, nil, nil, fakeAuditDepth{depth: 950, capacity: 1000}, "")

	resp := hc.Check(context.Background())
	if resp.Status != "unhealthy" {
		t.Fatalf("expected unhealthy at >90%% audit channel depth, got %q (%v)", resp.Status, resp.Checks)
	}
}

func TestHealthChecker_Check_NilComponentsReportNotConfigured(t *testing.T) {
	hc := NewHealthChecker(nil, nil, nil, nil, "")

	resp := hc.Check(context.Background())
	if resp.Status != "healthy" {
		t.Fatalf("expected a deployment with nothing wired to still report healthy, got %q", resp.Status)
	}
	for _, key := range []string{"store", "session_cache", "rate_limiter", "audit"} {
		if resp.Checks[key] != "not configured" {
			t.Errorf("expected %q check to be not configured, got %q", key, resp.Checks[key])
		}
	}
}

func TestHealthChecker_Handler_ServesJSONWithMatchingStatusCode(t *testing.T) {
	hc := NewHealthChecker(fakePinger{err: errors.New("down")}, nil, nil, nil, "")

	rec := httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Status != "unhealthy" {
		t.Errorf("expected unhealthy body, got %q", body.Status)
	}
}
