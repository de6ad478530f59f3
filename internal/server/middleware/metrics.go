package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/riftproxy/riftproxy/internal/observability"
)

// Request metric names.
const (
	HTTPRequestsTotal     = "http_requests_total"
	HTTPRequestDurationMs = "http_request_duration_ms"
	HTTPResponseSizeBytes = "http_response_size_bytes"
	HTTPErrorsTotal       = "http_errors_total"
)

// Surfaces group routes for metric labels.
const (
	SurfaceAPI     = "api"
	SurfaceOps     = "ops"
	SurfaceAdmin   = "admin"
	SurfaceDebug   = "debug"
	SurfaceUnknown = "unknown"
)

// statusRecorder captures the status code and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.written += int64(n)
	return n, err
}

// RoutePattern returns the chi route pattern for r so metric labels stay
// low-cardinality. Summoner names and IDs never appear in the result.
// Unrouted paths collapse to "/unknown".
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	switch path := r.URL.Path; {
	case strings.HasPrefix(path, "/health"):
		return "/health/*"
	case strings.HasPrefix(path, "/api/"):
		return "/api/*"
	case path == "/version", path == "/metrics", path == "/":
		return path
	default:
		return "/unknown"
	}
}

// Surface classifies a route pattern.
func Surface(pattern string) string {
	switch {
	case strings.HasPrefix(pattern, "/api"):
		return SurfaceAPI
	case strings.HasPrefix(pattern, "/health"), pattern == "/version", pattern == "/metrics":
		return SurfaceOps
	case strings.HasPrefix(pattern, "/admin"):
		return SurfaceAdmin
	case strings.HasPrefix(pattern, "/debug"):
		return SurfaceDebug
	default:
		return SurfaceUnknown
	}
}

func errorClass(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "throttled"
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return ""
	}
}

// RequestMetrics records count, latency and size for every request, plus an
// error counter for 4xx/5xx responses. It is a pass-through when telemetry
// is disabled.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys := observability.TelemetrySystem
		if sys == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		endpoint := RoutePattern(r)
		surface := Surface(endpoint)
		status := strconv.Itoa(rec.status)

		labels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
			"surface":  surface,
			"status":   status,
		}
		_ = sys.Counter(HTTPRequestsTotal, 1, labels)
		_ = sys.Histogram(HTTPRequestDurationMs, elapsed, labels)
		_ = sys.Gauge(HTTPResponseSizeBytes, float64(rec.written), map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
		})

		if class := errorClass(rec.status); class != "" {
			_ = sys.Counter(HTTPErrorsTotal, 1, map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"surface":    surface,
				"status":     status,
				"error_type": class,
			})
		}

		if logger := observability.ServerLogger; logger != nil {
			logger.Debug("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", endpoint),
				zap.String("surface", surface),
				zap.Int("status", rec.status),
				zap.Duration("duration", elapsed),
				zap.Int64("response_size", rec.written),
				zap.String("request_id", GetRequestID(r.Context())),
			)
		}
	})
}
