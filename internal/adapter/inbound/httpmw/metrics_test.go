package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetric_RecordsRequestCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "detection")

	r := chi.NewRouter()
	r.Use(Metric(m))
	r.Get("/v1/detect", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/detect", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var mm dto.Metric
	if err := m.RequestsTotal.WithLabelValues("GET", "/v1/detect", "ok").Write(&mm); err != nil {
		t.Fatal(err)
	}
	if mm.Counter.GetValue() != 1 {
		t.Errorf("expected count 1, got %f", mm.Counter.GetValue())
	}
}

func TestMetric_ErrorStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "proxy")

	r := chi.NewRouter()
	r.Use(Metric(m))
	r.Get("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var mm dto.Metric
	if err := m.RequestsTotal.WithLabelValues("GET", "/v1/chat/completions", "error").Write(&mm); err != nil {
		t.Fatal(err)
	}
	if mm.Counter.GetValue() != 1 {
		t.Errorf("expected count 1, got %f", mm.Counter.GetValue())
	}
}

func TestMetric_SkipsHealthAndMetricsEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "admin")

	r := chi.NewRouter()
	r.Use(Metric(m))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, fam := range families {
		if fam.GetName() == "gatekeep_request_duration_seconds" && len(fam.GetMetric()) != 0 {
			t.Errorf("expected no observations for /health or /metrics, got %d series", len(fam.GetMetric()))
		}
	}
}

func TestRouteOrPath_FallsBackToRawPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/not/routed", nil)
	if got := routeOrPath(req); got != "/not/routed" {
		t.Errorf("expected raw path fallback, got %q", got)
	}
}
