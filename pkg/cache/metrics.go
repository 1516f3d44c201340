package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by namespace
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_cache_hits_total",
			Help: "Total number of lookup cache hits",
		},
		[]string{"namespace"},
	)

	// CacheMisses tracks cache misses by namespace
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_cache_misses_total",
			Help: "Total number of lookup cache misses",
		},
		[]string{"namespace"},
	)

	// CacheSize tracks bytes written to the cache by namespace
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atlas_cache_size_bytes",
			Help: "Bytes written to the lookup cache",
		},
		[]string{"namespace"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
