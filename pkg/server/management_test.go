package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nimburion/ticketwarden/pkg/config"
	"github.com/nimburion/ticketwarden/pkg/credential"
	"github.com/nimburion/ticketwarden/pkg/health"
	"github.com/nimburion/ticketwarden/pkg/observability/logger"
	"github.com/nimburion/ticketwarden/pkg/observability/metrics"
	"github.com/nimburion/ticketwarden/pkg/testutil"
	"github.com/nimburion/ticketwarden/pkg/version"
)

type stubCheckable struct{ err error }

func (s stubCheckable) HealthCheck(context.Context) error { return s.err }

func newTestManagementServer(t *testing.T, log logger.Logger, checks ...health.Checker) *ManagementServer {
	t.Helper()
	registry := health.NewRegistry()
	for _, c := range checks {
		registry.Register(c)
	}
	return NewManagementServer(
		config.ManagementConfig{Port: 0, ReadTimeout: time.Second, WriteTimeout: time.Second},
		log,
		registry,
		metrics.NewRegistry(),
		version.Info{Service: "ticketwarden", Version: "v0.1.0"},
	)
}

func serve(s *ManagementServer, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestManagementServer_Health(t *testing.T) {
	s := newTestManagementServer(t, logger.Nop(), health.NewAdapterChecker("database", stubCheckable{err: errors.New("down")}, 0))

	rec := serve(s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even with failing dependencies, got %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}

	var body health.AggregatedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Status != health.StatusHealthy || len(body.Checks) != 1 || body.Checks[0].Name != "process" {
		t.Fatalf("expected only the process liveness check, got %+v", body)
	}
}

func TestManagementServer_Ready(t *testing.T) {
	tests := []struct {
		name   string
		checks []health.Checker
		want   int
	}{
		{"no checks", nil, http.StatusOK},
		{"healthy", []health.Checker{health.NewPingChecker("ping")}, http.StatusOK},
		{"unhealthy", []health.Checker{health.NewAdapterChecker("database", stubCheckable{err: errors.New("down")}, 0)}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestManagementServer(t, logger.Nop(), tt.checks...)
			rec := serve(s, http.MethodGet, "/ready")
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			var body health.AggregatedResult
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if len(body.Checks) != len(tt.checks) {
				t.Fatalf("expected %d checks, got %d", len(tt.checks), len(body.Checks))
			}
		})
	}
}

func TestManagementServer_Version(t *testing.T) {
	s := newTestManagementServer(t, logger.Nop())

	rec := serve(s, http.MethodGet, "/version")
	var info version.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if info.Service != "ticketwarden" || info.Version != "v0.1.0" {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestManagementServer_Credential(t *testing.T) {
	s := newTestManagementServer(t, logger.Nop())
	s.credential = func() (*credential.Handle, bool) { return nil, false }

	if rec := serve(s, http.MethodGet, "/credential"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without credential, got %d", rec.Code)
	}

	now := time.Now()
	authority := credential.AuthorityFunc(func(_ context.Context, principal, _ string) (credential.Ticket, error) {
		return credential.Ticket{Principal: principal, AuthTime: now, EndTime: now.Add(time.Hour), RenewTill: now.Add(2 * time.Hour)}, nil
	})
	h, err := credential.Login(context.Background(), authority, "renewal1@EXAMPLE.COM", "/etc/renewal1.keytab", logger.Nop(), credential.Options{})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	s.credential = func() (*credential.Handle, bool) { return h, true }

	rec := serve(s, http.MethodGet, "/credential")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status credential.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if status.Principal != "renewal1@EXAMPLE.COM" || !status.Valid {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestManagementServer_MetricsIncludeRequests(t *testing.T) {
	s := newTestManagementServer(t, logger.Nop())
	serve(s, http.MethodGet, "/health")

	rec := serve(s, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `ticketwarden_management_http_requests_total{method="GET",path="/health",status="200"}`) {
		t.Fatalf("request counter missing from scrape:\n%s", body)
	}
}

func TestManagementServer_RecoversPanics(t *testing.T) {
	log := testutil.NewMockLogger()
	s := newTestManagementServer(t, log)
	s.Router().HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := serve(s, http.MethodGet, "/boom")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := log.CountMessage("error", "panic recovered"); got != 1 {
		t.Fatalf("expected 1 panic log, got %d", got)
	}
}

func TestServer_ServeUntilCancelled(t *testing.T) {
	s := newTestManagementServer(t, logger.Nop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
