package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nimburion/ticketwarden/pkg/config"
	"github.com/nimburion/ticketwarden/pkg/credential"
	"github.com/nimburion/ticketwarden/pkg/health"
	"github.com/nimburion/ticketwarden/pkg/observability/logger"
	"github.com/nimburion/ticketwarden/pkg/observability/metrics"
	"github.com/nimburion/ticketwarden/pkg/version"
)

// ManagementServer exposes liveness, readiness, metrics, build info and the
// credential status on a port separate from any workload traffic.
type ManagementServer struct {
	*Server
	router          *mux.Router
	log             logger.Logger
	liveness        *health.Registry
	healthRegistry  *health.Registry
	metricsRegistry *metrics.Registry
	info            version.Info
	credential      func() (*credential.Handle, bool)
}

// NewManagementServer registers:
//   - GET /health      liveness of the process itself, independent of dependencies
//   - GET /ready       readiness from the health registry, 503 when unhealthy
//   - GET /metrics     Prometheus exposition
//   - GET /version     build metadata
//   - GET /credential  status of the installed credential, 404 when none
func NewManagementServer(
	cfg config.ManagementConfig,
	log logger.Logger,
	healthRegistry *health.Registry,
	metricsRegistry *metrics.Registry,
	info version.Info,
) *ManagementServer {
	r := mux.NewRouter()
	r.Use(requestID, recovery(log), observe(log))

	liveness := health.NewRegistry()
	liveness.Register(health.NewPingChecker("process"))

	s := &ManagementServer{
		Server: NewServer(Config{
			Port:         cfg.Port,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}, r, log),
		router:          r,
		log:             log,
		liveness:        liveness,
		healthRegistry:  healthRegistry,
		metricsRegistry: metricsRegistry,
		info:            info,
		credential:      credential.Current,
	}

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", metricsRegistry.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/credential", s.handleCredential).Methods(http.MethodGet)

	return s
}

func (s *ManagementServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	result := s.liveness.Check(r.Context())
	if !result.IsHealthy() {
		writeJSON(w, http.StatusServiceUnavailable, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Degraded counts as ready: the credential is still valid while renewal retries.
func (s *ManagementServer) handleReady(w http.ResponseWriter, r *http.Request) {
	result := s.healthRegistry.Check(r.Context())
	if result.Status == health.StatusUnhealthy {
		writeJSON(w, http.StatusServiceUnavailable, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *ManagementServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.info)
}

func (s *ManagementServer) handleCredential(w http.ResponseWriter, r *http.Request) {
	h, ok := s.credential()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "no credential installed",
		})
		return
	}
	writeJSON(w, http.StatusOK, h.Status())
}

// Router returns the underlying router for registering extra routes.
func (s *ManagementServer) Router() *mux.Router {
	return s.router
}

// Start starts the management server.
func (s *ManagementServer) Start(ctx context.Context) error {
	return s.Server.Start(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
