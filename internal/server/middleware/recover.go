package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/riftproxy/riftproxy/internal/metrics"
	"github.com/riftproxy/riftproxy/internal/observability"
)

// ErrorResponse mirrors the body written by the errors package, which this
// package cannot import.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the inner error object of ErrorResponse.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// headerTracker notes whether the wrapped handler already started a response.
type headerTracker struct {
	http.ResponseWriter
	started bool
}

func (ht *headerTracker) WriteHeader(code int) {
	ht.started = true
	ht.ResponseWriter.WriteHeader(code)
}

func (ht *headerTracker) Write(b []byte) (int, error) {
	ht.started = true
	return ht.ResponseWriter.Write(b)
}

// Recovery turns handler panics into a 500 INTERNAL_ERROR envelope. When the
// handler had already written part of a response, the panic is only logged.
// http.ErrAbortHandler is re-raised untouched.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracker := &headerTracker{ResponseWriter: w}
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			requestID := GetRequestID(r.Context())
			metrics.RecordPanic()
			if logger := observability.ServerLogger; logger != nil {
				logger.Error("recovered handler panic",
					zap.String("panic", fmt.Sprint(recovered)),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("surface", Surface(RoutePattern(r))),
					zap.Bool("response_started", tracker.started),
					zap.String("request_id", requestID),
					zap.String("stack_trace", string(debug.Stack())))
			}
			if tracker.started {
				return
			}

			envelope := errors.NewErrorEnvelope("INTERNAL_ERROR", "internal server error").
				WithCorrelationID(requestID)
			envelope, _ = envelope.WithSeverity(errors.SeverityCritical)
			writeErrorResponse(w, envelope, http.StatusInternalServerError)
		}()

		next.ServeHTTP(tracker, r)
	})
}

func writeErrorResponse(w http.ResponseWriter, envelope *errors.ErrorEnvelope, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   envelope.Context,
			RequestID: envelope.CorrelationID,
		},
	})
}
