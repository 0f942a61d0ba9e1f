package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/malone1029/nia-results-tracker-sub003/internal/observability"
	"github.com/malone1029/nia-results-tracker-sub003/internal/ratelimit"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func newRequestLogger(logger *slog.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, req)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			route := req.URL.Path
			if rctx := chi.RouteContext(req.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			elapsed := time.Since(start)
			metrics.ObserveRequest(req.Method, route, rec.status, elapsed)
			logger.Debug("http request",
				"method", req.Method,
				"route", route,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds())
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// newRateLimitMiddleware throttles writes under the API base path per caller.
func newRateLimitMiddleware(basePath string, limiter ratelimit.Limiter, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !isWrite(req.Method) || !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			key := rateLimitKey(req)
			if !limiter.Allow(key) {
				metrics.ObserveRateLimited()
				w.Header().Set("Retry-After", "60")
				respondStatusError(w, newAPIError(http.StatusTooManyRequests, "rate_limited", "too many requests", map[string]any{"key": key}))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
