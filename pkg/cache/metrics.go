package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_cache_hits_total",
			Help: "Total number of graph response cache hits",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_cache_misses_total",
			Help: "Total number of graph response cache misses",
		},
	)

	// CacheSize tracks bytes written to the cache by layer
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graph_cache_size_bytes",
			Help: "Bytes written to the graph response cache",
		},
		[]string{"layer"},
	)

	// ConditionalRequestsSent tracks requests sent with a validator header
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_conditional_requests_total",
			Help: "Total number of conditional graph requests sent",
		},
	)

	// NotModifiedResponses tracks 304 Not Modified responses
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_304_responses_total",
			Help: "Total number of graph 304 Not Modified responses",
		},
	)

	// CacheInvalidations tracks entries dropped after a write to their path
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_cache_invalidations_total",
			Help: "Total number of cache entries dropped after a graph write",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "invalidate"
	)
)
