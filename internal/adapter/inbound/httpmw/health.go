package httpmw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
)

// HealthResponse is the JSON body served by /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// pinger is the subset of *store.Store the health check needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// sizer is implemented by the in-process sessioncache/ratelimitstore
// Memory adapters; a nil sizer (redis-backed deployment) is reported as
// "not configured" rather than probed.
type sizer interface {
	Size() int
}

// auditDepth is implemented by fswriter.Writer.
type auditDepth interface {
	ChannelDepth() int
	ChannelCapacity() int
	Dropped() int64
}

// HealthChecker verifies component reachability for GET /health,
// adapted from the teacher's HealthChecker (session store/rate
// limiter size probes, audit channel backpressure, goroutine count)
// generalized to this gateway's store/session-cache/rate-limiter/audit
// adapters, any of which may be redis-backed (nil here) in a given
// deployment.
type HealthChecker struct {
	db          pinger
	sessions    sizer
	rateLimiter sizer
	audit       auditDepth
	version     string
}

// NewHealthChecker builds a HealthChecker. Pass nil for any component
// not in use by this deployment (e.g. sessions/rateLimiter when redis
// is configured instead of the in-process adapters).
func NewHealthChecker(db pinger, sessions, rateLimiter sizer, audit auditDepth, version string) *HealthChecker {
	return &HealthChecker{db: db, sessions: sessions, rateLimiter: rateLimiter, audit: audit, version: version}
}

// Check runs every configured probe and reports an overall status.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["store"] = fmt.Sprintf("unreachable: %v", err)
			healthy = false
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "not configured"
	}

	if h.sessions != nil {
		checks["session_cache"] = fmt.Sprintf("ok: %d entries", h.sessions.Size())
	} else {
		checks["session_cache"] = "not configured"
	}

	if h.rateLimiter != nil {
		checks["rate_limiter"] = fmt.Sprintf("ok: %d entries", h.rateLimiter.Size())
	} else {
		checks["rate_limiter"] = "not configured"
	}

	if h.audit != nil {
		depth, capacity := h.audit.ChannelDepth(), h.audit.ChannelCapacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}
		if percentFull > 90 {
			checks["audit"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["audit"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}
		if drops := h.audit.Dropped(); drops > 0 {
			checks["audit_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["audit"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	return HealthResponse{Status: status, Checks: checks, Version: h.version}
}

// Handler returns the /health HTTP handler: 200 when healthy, 503
// (backpressure or an unreachable store) otherwise.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
}
