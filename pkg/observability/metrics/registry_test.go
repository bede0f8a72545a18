package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var testDefaultCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ticketwarden_metrics_test_default_total",
	Help: "Counter registered on the default registry for tests",
})

func scrape(t *testing.T, registry *Registry) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestRegistry_ExposesDefaultAndManagementMetrics(t *testing.T) {
	registry := NewRegistry()
	testDefaultCounter.Inc()
	RecordHTTPMetrics(http.MethodGet, "/health", http.StatusOK, 5*time.Millisecond)

	body := scrape(t, registry)
	for _, name := range []string{
		"ticketwarden_metrics_test_default_total",
		"ticketwarden_management_http_requests_total",
		"ticketwarden_management_http_request_duration_seconds",
		"go_goroutines",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in scrape output", name)
		}
	}
}

func TestRegistry_RegisterCustomCollector(t *testing.T) {
	registry := NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ticketwarden_metrics_test_custom",
		Help: "Custom gauge for tests",
	})

	if err := registry.Register(gauge); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := registry.Register(gauge); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	gauge.Set(3)

	if body := scrape(t, registry); !strings.Contains(body, "ticketwarden_metrics_test_custom 3") {
		t.Fatal("expected custom gauge in scrape output")
	}

	if !registry.Unregister(gauge) {
		t.Fatal("expected Unregister to succeed")
	}
	if body := scrape(t, registry); strings.Contains(body, "ticketwarden_metrics_test_custom") {
		t.Fatal("unregistered gauge still scraped")
	}
}
