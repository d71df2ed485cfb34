package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend ("redis", "memory")
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnia_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnia_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks swallowed backend and serialization errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnia_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "exists", "clear_pattern", "encode", "decode"
	)

	// CacheSweeps counts capacity-triggered sweeps of the memory cache
	CacheSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learnia_cache_sweeps_total",
			Help: "Total number of expired-entry sweeps run by the memory cache",
		},
	)

	// CacheSweptEntries counts entries removed by sweeps
	CacheSweptEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learnia_cache_swept_entries_total",
			Help: "Total number of expired entries removed by sweeps",
		},
	)

	// PrimaryAvailable is 1 while the primary backend serves traffic
	PrimaryAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "learnia_cache_primary_available",
			Help: "Whether the primary cache backend is in use (1) or the fallback is (0)",
		},
	)
)
