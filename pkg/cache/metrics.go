package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks thumbnail outcome cache hits by outcome
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topposts_image_cache_hits_total",
			Help: "Total number of thumbnail cache hits",
		},
		[]string{"outcome"}, // "loaded", "failed"
	)

	// CacheMisses tracks thumbnail cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topposts_image_cache_misses_total",
			Help: "Total number of thumbnail cache misses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topposts_image_cache_errors_total",
			Help: "Total number of thumbnail cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
