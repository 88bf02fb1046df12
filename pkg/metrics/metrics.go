// Package metrics exposes the Prometheus metrics of the graph client.
// The metrics themselves are defined next to the code that records them
// (graph, transport, cache, ratelimit) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer the graph packages register with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Dispatch (pkg/graph):
//   - graph_dispatch_total{verb, outcome} (Counter): ok, outage, api_error, transport_error, missing_credential
//   - graph_api_errors_total{type} (Counter): structured API errors by error type
//
// Transport (pkg/transport):
//   - graph_http_requests_total{method, status} (Counter)
//   - graph_http_request_duration_seconds{method} (Histogram)
//   - graph_http_errors_total{class} (Counter): client, server, rate_limit, network, decode
//   - graph_http_retries_total{error_class} (Counter)
//   - graph_http_retry_backoff_seconds{error_class} (Histogram)
//   - graph_http_retry_exhausted_total{error_class} (Counter)
//
// Usage (pkg/ratelimit):
//   - graph_app_usage_percent (Gauge): highest X-App-Usage percentage
//   - graph_rate_limit_blocks_total (Counter)
//   - graph_rate_limit_throttles_total (Counter)
//
// Cache (pkg/cache):
//   - graph_cache_hits_total{layer="redis"} (Counter)
//   - graph_cache_misses_total (Counter)
//   - graph_cache_size_bytes{layer="redis"} (Gauge)
//   - graph_conditional_requests_total (Counter)
//   - graph_304_responses_total (Counter)
//   - graph_cache_invalidations_total (Counter)
//   - graph_cache_errors_total{operation} (Counter)
//
// Example Prometheus Queries:
//
//   # API error ratio
//   sum(rate(graph_dispatch_total{outcome="api_error"}[5m])) / sum(rate(graph_dispatch_total[5m]))
//
//   # Outage rate
//   rate(graph_dispatch_total{outcome="outage"}[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(graph_http_request_duration_seconds_bucket[5m]))
//
//   # Usage close to the block threshold
//   graph_app_usage_percent > 90
