package engine

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/riftproxy/riftproxy/internal/core"
)

// Rate limit headers sent by the platform API.
const (
	HeaderAppRateLimit         = "X-App-Rate-Limit"
	HeaderAppRateLimitCount    = "X-App-Rate-Limit-Count"
	HeaderMethodRateLimit      = "X-Method-Rate-Limit"
	HeaderMethodRateLimitCount = "X-Method-Rate-Limit-Count"
)

// RateGate decides whether the next platform call may proceed based on the
// last observed rate limit headers.
type RateGate struct {
	// Host is the rate-limited upstream host. Responses from other hosts are
	// ignored by Observe.
	Host  string
	Clock func() time.Time

	mu    sync.RWMutex
	state *core.RateState
}

// NewRateGate creates a gate for the given rate-limited host.
func NewRateGate(host string) *RateGate {
	return &RateGate{Host: host}
}

// Decide reports whether a call may proceed. Before any response has been
// observed every call is admitted.
func (g *RateGate) Decide() bool {
	if g == nil {
		return true
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.state == nil {
		return true
	}

	for _, window := range g.state.Application {
		if window.Exhausted() {
			return false
		}
	}
	for _, window := range g.state.Method {
		if window.Exhausted() {
			return false
		}
	}
	return true
}

// Observe replaces the rate state from a response's headers. It returns false
// when the response came from another host or carried no rate limit headers.
func (g *RateGate) Observe(host string, header http.Header) bool {
	if g == nil || header == nil {
		return false
	}
	if !sameHost(g.Host, host) {
		return false
	}

	appLimit := header.Get(HeaderAppRateLimit)
	appCount := header.Get(HeaderAppRateLimitCount)
	methodLimit := header.Get(HeaderMethodRateLimit)
	methodCount := header.Get(HeaderMethodRateLimitCount)
	if appLimit == "" && appCount == "" && methodLimit == "" && methodCount == "" {
		return false
	}

	state := &core.RateState{
		Application: ParseRateHeader(appLimit, appCount),
		Method:      ParseRateHeader(methodLimit, methodCount),
		ObservedAt:  g.now(),
	}

	g.mu.Lock()
	g.state = state
	g.mu.Unlock()
	return true
}

// State returns a copy of the last observed state.
func (g *RateGate) State() (core.RateState, bool) {
	if g == nil {
		return core.RateState{}, false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.state == nil {
		return core.RateState{}, false
	}

	return core.RateState{
		Application: append([]core.RateWindow(nil), g.state.Application...),
		Method:      append([]core.RateWindow(nil), g.state.Method...),
		ObservedAt:  g.state.ObservedAt,
	}, true
}

// Reset forgets the observed state, returning the gate to cold start.
func (g *RateGate) Reset() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.state = nil
	g.mu.Unlock()
}

// ParseRateHeader pairs a "limit:window,..." header with its
// "count:window,..." counterpart by position. Windows are not matched by
// their window value, so reordered headers pair incorrectly. Any malformed
// segment or a length mismatch yields an empty list.
func ParseRateHeader(limitHeader, countHeader string) []core.RateWindow {
	limits, ok := parsePairs(limitHeader)
	if !ok {
		return []core.RateWindow{}
	}
	counts, ok := parsePairs(countHeader)
	if !ok || len(counts) != len(limits) {
		return []core.RateWindow{}
	}

	windows := make([]core.RateWindow, 0, len(limits))
	for i, limit := range limits {
		windows = append(windows, core.RateWindow{
			Limit:         limit[0],
			WindowSeconds: limit[1],
			Count:         counts[i][0],
		})
	}
	return windows
}

func parsePairs(header string) ([][2]int, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, false
	}

	segments := strings.Split(header, ",")
	pairs := make([][2]int, 0, len(segments))
	for _, segment := range segments {
		parts := strings.Split(strings.TrimSpace(segment), ":")
		if len(parts) != 2 {
			return nil, false
		}
		value, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, false
		}
		window, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, false
		}
		pairs = append(pairs, [2]int{value, window})
	}
	return pairs, true
}

func sameHost(want, got string) bool {
	return strings.EqualFold(stripPort(want), stripPort(got)) && strings.TrimSpace(want) != ""
}

func stripPort(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func (g *RateGate) now() time.Time {
	if g != nil && g.Clock != nil {
		return g.Clock()
	}
	return time.Now().UTC()
}
