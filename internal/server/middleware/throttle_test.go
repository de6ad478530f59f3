package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThrottleRejectsAfterBurst(t *testing.T) {
	collector := installCollector(t)

	limiters := NewClientLimiters(1, 2)
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiters.now = func() time.Time { return frozen }

	handler := RequestID(Throttle(limiters, "/api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/champions/random", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusNoContent, do("10.0.0.1:5000").Code)
	require.Equal(t, http.StatusNoContent, do("10.0.0.1:5001").Code)

	rec := do("10.0.0.1:5002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "RATE_LIMITED", body.Error.Code)
	require.Equal(t, "client", body.Error.Details["scope"])
	require.NotEmpty(t, body.Error.RequestID)
	require.Greater(t, collector.CountMetricsByName("client_throttled_total"), 0)

	// other clients have their own bucket
	require.Equal(t, http.StatusNoContent, do("10.0.0.2:5000").Code)
	require.Equal(t, 2, limiters.Len())

	// tokens refill with time
	frozen = frozen.Add(time.Second)
	require.Equal(t, http.StatusNoContent, do("10.0.0.1:5003").Code)
}

func TestThrottleSweepsIdleClients(t *testing.T) {
	limiters := NewClientLimiters(10, 10)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiters.now = func() time.Time { return now }

	require.True(t, limiters.Allow("a"))
	require.True(t, limiters.Allow("b"))
	require.Equal(t, 2, limiters.Len())

	now = now.Add(throttleIdleTTL + time.Minute)
	require.True(t, limiters.Allow("c"))
	require.Equal(t, 1, limiters.Len())
}

func TestThrottleDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Throttle(nil, "/api")(next)

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
