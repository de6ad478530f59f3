package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"golang.org/x/time/rate"

	"github.com/riftproxy/riftproxy/internal/metrics"
)

const (
	throttleIdleTTL    = 15 * time.Minute
	throttleSweepEvery = 2 * time.Minute
)

// ClientLimiters holds one token bucket per client address.
type ClientLimiters struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiters allows each client perSecond sustained requests with the
// given burst.
func NewClientLimiters(perSecond float64, burst int) *ClientLimiters {
	return &ClientLimiters{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
		entries: make(map[string]*limiterEntry),
	}
}

// Allow consumes a token for key.
func (c *ClientLimiters) Allow(key string) bool {
	now := c.now()

	c.mu.Lock()
	if now.Sub(c.lastSweep) >= throttleSweepEvery {
		c.sweepLocked(now)
	}
	ent, ok := c.entries[key]
	if !ok {
		ent = &limiterEntry{lim: rate.NewLimiter(c.limit, c.burst)}
		c.entries[key] = ent
	}
	ent.lastSeen = now
	c.mu.Unlock()

	return ent.lim.AllowN(now, 1)
}

// Len reports the number of tracked clients.
func (c *ClientLimiters) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ClientLimiters) sweepLocked(now time.Time) {
	cutoff := now.Add(-throttleIdleTTL)
	for key, ent := range c.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(c.entries, key)
		}
	}
	c.lastSweep = now
}

// Throttle rejects clients that exceed their request rate with 429. The
// client is identified by its remote IP, so chi's RealIP should run first.
// A nil limiter disables throttling.
func Throttle(limiters *ClientLimiters, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiters == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiters.Allow(clientKey(r)) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RecordClientThrottled(scope)
			envelope := errors.NewErrorEnvelope("RATE_LIMITED", "too many requests").
				WithCorrelationID(GetRequestID(r.Context()))
			envelope, _ = envelope.WithContext(map[string]interface{}{
				"scope": "client",
			})
			retry := 1
			if limiters.limit > 0 && limiters.limit < 1 {
				retry = int(1/float64(limiters.limit)) + 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeErrorResponse(w, envelope, http.StatusTooManyRequests)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
