// Package metrics exposes Prometheus metrics for the management server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry combines the management HTTP metrics with everything registered on
// the default Prometheus registry. Runtime components register their
// collectors through promauto, which lands on the default registry together
// with the Go and process collectors.
type Registry struct {
	registry *prometheus.Registry
	gatherer prometheus.Gatherer
}

// NewRegistry creates a registry with the management HTTP collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(httpRequestDuration, httpRequestsTotal)

	return &Registry{
		registry: reg,
		gatherer: prometheus.Gatherers{reg, prometheus.DefaultGatherer},
	}
}

// Register adds a collector to the registry.
func (r *Registry) Register(collector prometheus.Collector) error {
	return r.registry.Register(collector)
}

// Unregister removes a collector added with Register.
func (r *Registry) Unregister(collector prometheus.Collector) bool {
	return r.registry.Unregister(collector)
}

// Handler serves the combined metrics in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
