// Package metrics exposes the Prometheus registry shared by the cache and
// rate limiter. Cache and rate-limit metrics are defined in their packages
// via promauto and land in the default registry; request latency is
// recorded here by Instrument.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every learnia metric is registered with.
var Registry = prometheus.DefaultRegisterer

// RequestDuration observes API request latency by status code and method.
var RequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "learnia_http_request_duration_seconds",
		Help:    "Duration of API requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"code", "method"},
)

// Handler serves the metrics of the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records the duration of every request served by next.
func Instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(RequestDuration, next)
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - learnia_cache_hits_total{backend} (Counter): Cache hits by backend (redis, memory)
//   - learnia_cache_misses_total{backend} (Counter): Cache misses by backend
//   - learnia_cache_errors_total{operation} (Counter): Swallowed backend and serialization errors
//   - learnia_cache_sweeps_total (Counter): Capacity-triggered sweeps of the memory cache
//   - learnia_cache_swept_entries_total (Counter): Expired entries removed by sweeps
//   - learnia_cache_primary_available (Gauge): 1 while Redis serves traffic
//
// HTTP Metrics (pkg/metrics):
//   - learnia_http_request_duration_seconds{code,method} (Histogram): API request latency
//
// Rate Limit Metrics (pkg/ratelimit):
//   - learnia_ratelimit_decisions_total{result} (Counter): allowed, denied, locked, global
//   - learnia_ratelimit_lockouts_total (Counter): Lockouts created
//   - learnia_ratelimit_tracked_identifiers (Gauge): Identifiers held in memory
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(learnia_cache_hits_total[5m])) /
//   (sum(rate(learnia_cache_hits_total[5m])) + sum(rate(learnia_cache_misses_total[5m])))
//
//   # 95th Percentile Request Latency
//   histogram_quantile(0.95, sum(rate(learnia_http_request_duration_seconds_bucket[5m])) by (le))
//
//   # Running on the fallback
//   learnia_cache_primary_available == 0
//
//   # Denial Rate
//   sum(rate(learnia_ratelimit_decisions_total{result!="allowed"}[5m])) /
//   sum(rate(learnia_ratelimit_decisions_total[5m]))
