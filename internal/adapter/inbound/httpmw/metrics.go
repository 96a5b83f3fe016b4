package httpmw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics shared by the three HTTP surfaces,
// grounded on the teacher's http.Metrics (one registry per process,
// requests_total/request_duration_seconds plus a few gateway-specific
// gauges/counters).
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	PolicyActions    *prometheus.CounterVec
	AuditDropsTotal  prometheus.Counter
	ConcurrencyInUse *prometheus.GaugeVec
}

// NewMetrics registers every metric against reg. surface distinguishes
// the admin/detection/proxy process in multi-binary deployments.
func NewMetrics(reg prometheus.Registerer, surface string) *Metrics {
	constLabels := prometheus.Labels{"surface": surface}
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "gatekeep",
				Name:        "requests_total",
				Help:        "Total number of HTTP requests processed.",
				ConstLabels: constLabels,
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "gatekeep",
				Name:        "request_duration_seconds",
				Help:        "Request duration in seconds.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"method", "path"},
		),
		PolicyActions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "gatekeep",
				Name:        "policy_actions_total",
				Help:        "Disposition actions returned by the detection pipeline.",
				ConstLabels: constLabels,
			},
			[]string{"action"},
		),
		AuditDropsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace:   "gatekeep",
				Name:        "audit_drops_total",
				Help:        "Detection log records dropped due to channel overflow.",
				ConstLabels: constLabels,
			},
		),
		ConcurrencyInUse: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   "gatekeep",
				Name:        "concurrency_slots_in_use",
				Help:        "In-flight requests currently holding a concurrency slot.",
				ConstLabels: constLabels,
			},
			[]string{"surface"},
		),
	}
}

// Metric wraps the handler chain to record request_duration_seconds and
// requests_total, matching the teacher's MetricsMiddleware (status
// bucketed ok/error, method+path labels, /metrics and /health excluded).
func Metric(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			routePattern := routeOrPath(r)
			m.RequestDuration.WithLabelValues(r.Method, routePattern).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(r.Method, routePattern, statusToLabel(rec.status)).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}

// routeOrPath prefers chi's matched route pattern (e.g. "/tenants/{id}")
// over the raw path so per-resource metrics don't explode one series per id.
func routeOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
