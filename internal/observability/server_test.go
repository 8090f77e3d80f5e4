package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"voice-survey-service/internal/observability/metrics"
)

func TestHandler_Endpoints(t *testing.T) {
	ready := false
	h := NewHandler(func() bool { return ready })

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.want, rec.Code)
		}
	}

	ready = true
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected readyz 200 once ready, got %d", rec.Code)
	}
}

func TestHTTPMiddleware_RecordsRoutePattern(t *testing.T) {
	m := metrics.NewMetricsWith(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(HTTPMiddleware(m))
	r.Get("/play/{callId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/play/abc", nil))

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/play/{callId}", "418")); got != 1 {
		t.Errorf("expected 1 request recorded under route pattern, got %v", got)
	}
}
