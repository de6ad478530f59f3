package metrics

import (
	"time"

	"github.com/riftproxy/riftproxy/internal/observability"
)

// Proxy metric names
const (
	CacheLookupsTotal    = "cache_lookups_total"
	UpstreamCallsTotal   = "upstream_calls_total"
	UpstreamCallDuration = "upstream_call_duration_ms"
	RateGateBlockedTotal = "rate_gate_blocked_total"
	FlushFailuresTotal   = "store_flush_failures_total"
	StaticRefreshTotal   = "static_refresh_total"
	CachedSummoners      = "cached_summoners"
	CatalogChampions     = "catalog_champions"
	ClientThrottledTotal = "client_throttled_total"
)

// RecordCacheLookup records a local cache lookup and whether it hit.
func RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			CacheLookupsTotal,
			1,
			map[string]string{
				"kind":   kind,
				"result": result,
			},
		)
	}
}

// RecordUpstreamCall records an upstream call outcome by endpoint.
func RecordUpstreamCall(endpoint string, outcome string, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			UpstreamCallsTotal,
			1,
			map[string]string{
				"endpoint": endpoint,
				"outcome":  outcome,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			UpstreamCallDuration,
			duration,
			map[string]string{
				"endpoint": endpoint,
			},
		)
	}
}

// RecordRateGateBlocked records a call refused locally by the rate gate.
func RecordRateGateBlocked(endpoint string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RateGateBlockedTotal,
			1,
			map[string]string{
				"endpoint": endpoint,
			},
		)
	}
}

// RecordFlushFailure records a failed write to the persister.
func RecordFlushFailure(document string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			FlushFailuresTotal,
			1,
			map[string]string{
				"document": document,
			},
		)
	}
}

// RecordStaticRefresh records a static data refresh with its result
// (updated, current, fallback).
func RecordStaticRefresh(result string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			StaticRefreshTotal,
			1,
			map[string]string{
				"result": result,
			},
		)
	}
}

// SetCacheSize records the number of cached summoners and catalog entries.
func SetCacheSize(summoners int, champions int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(CachedSummoners, float64(summoners), nil)
		_ = observability.TelemetrySystem.Gauge(CatalogChampions, float64(champions), nil)
	}
}

// RecordClientThrottled records an inbound request rejected by the per-client limiter.
func RecordClientThrottled(route string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ClientThrottledTotal,
			1,
			map[string]string{
				"route": route,
			},
		)
	}
}
