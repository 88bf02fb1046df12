// Package cache provides a Redis-backed cache of graph GET responses used
// for conditional requests.
//
// Entries are never served without asking the server: the transport sends
// If-None-Match / If-Modified-Since from a cached entry and only reuses the
// cached body when the server answers 304 Not Modified.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.KeyFor("123/feed", url.Values{"limit": {"25"}, "access_token": {token}})
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// plain request
//	}
//	cache.AddConditionalHeaders(req, entry)
//
// A write to a path (POST or DELETE) makes every cached variant of that path
// stale; InvalidatePath drops them regardless of parameters or token.
//
// Access tokens are part of the key only as a SHA-256 digest, so responses
// fetched with different credentials never collide and tokens never reach
// Redis in clear.
//
// # Metrics
//
//   - graph_cache_hits_total{layer="redis"} - Cache hits
//   - graph_cache_misses_total - Cache misses
//   - graph_cache_size_bytes{layer="redis"} - Bytes written
//   - graph_conditional_requests_total - Conditional requests sent
//   - graph_304_responses_total - 304 Not Modified responses
//   - graph_cache_invalidations_total - Entries dropped after writes
//   - graph_cache_errors_total{operation} - Cache operation errors
package cache
