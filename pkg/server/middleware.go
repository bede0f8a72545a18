package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nimburion/ticketwarden/pkg/observability/logger"
	"github.com/nimburion/ticketwarden/pkg/observability/metrics"
)

// RequestIDHeader is the HTTP header name for request ID.
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.status = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// requestID preserves an incoming X-Request-ID or generates one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// observe logs and counts every request, labelled by route template so
// the metric cardinality stays bounded.
func observe(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					path = tpl
				}
			}
			duration := time.Since(start)
			metrics.RecordHTTPMetrics(r.Method, path, rec.status, duration)
			log.Debug("management request",
				"method", r.Method,
				"path", path,
				"status", rec.status,
				"duration", duration,
				"request_id", r.Header.Get(RequestIDHeader),
			)
		})
	}
}

// recovery turns a handler panic into a 500 response.
func recovery(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				if p := recover(); p != nil {
					log.Error("panic recovered",
						"request_id", r.Header.Get(RequestIDHeader),
						"panic", p,
						"stack", string(debug.Stack()),
					)
					if !rec.written {
						writeJSON(rec, http.StatusInternalServerError, map[string]interface{}{
							"error":      "internal_server_error",
							"message":    "an unexpected error occurred",
							"request_id": r.Header.Get(RequestIDHeader),
						})
					}
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
