// Package transport provides the default HTTP collaborator for the graph
// client: it turns graph requests into HTTP exchanges, with optional usage
// gating, conditional-request caching and retries.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/graph-api-client/pkg/cache"
	"github.com/Sternrassler/graph-api-client/pkg/graph"
	"github.com/Sternrassler/graph-api-client/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production graph endpoint.
const DefaultBaseURL = "https://graph.facebook.com"

// Transport sends graph requests over HTTP. It implements graph.Sender.
type Transport struct {
	httpClient *http.Client
	noRedirect *http.Client
	limiter    *rate.Limiter
	tracker    *ratelimit.Tracker
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the transport configuration.
type Config struct {
	// BaseURL is the graph endpoint without trailing slash
	BaseURL string

	// UserAgent header (REQUIRED)
	UserAgent string

	// Redis enables the response cache and shared usage tracking (optional)
	Redis *redis.Client

	// RateLimit caps outgoing requests per second (0 = unlimited)
	RateLimit float64

	// Timeout per HTTP exchange
	Timeout time.Duration

	// Retry controls retries of server, rate-limit and network failures.
	// POST requests are always sent once.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new transport.
func New(cfg Config) (*Transport, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "graph-transport").Logger()

	t := &Transport{
		config: cfg,
		logger: logger,
	}
	t.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})

	if cfg.RateLimit > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	if cfg.Redis != nil {
		t.tracker = ratelimit.NewTracker(cfg.Redis, logger)
		t.cache = cache.NewManager(cfg.Redis)
	}

	return t, nil
}

// SetHTTPClient sets a custom HTTP client (for testing). Picture lookups use
// a copy that does not follow redirects.
func (t *Transport) SetHTTPClient(client *http.Client) {
	t.httpClient = client

	noRedirect := *client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	t.noRedirect = &noRedirect
}

// Send performs the HTTP exchange for req.
func (t *Transport) Send(ctx context.Context, req graph.Request) (graph.RawResult, error) {
	method := string(req.Verb)
	logger := t.logger.With().
		Str("request_id", uuid.NewString()).
		Str("method", method).
		Str("path", req.Path).
		Logger()

	startTime := time.Now()
	defer func() {
		httpRequestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	if err := t.admit(ctx, logger); err != nil {
		return graph.RawResult{}, err
	}

	values, err := req.Params.Values()
	if err != nil {
		return graph.RawResult{}, &Error{Class: ErrorClassClient, Message: "encode params", Err: err}
	}

	var (
		cacheKey cache.CacheKey
		cached   *cache.CacheEntry
	)
	cacheable := t.cache != nil && req.Verb == graph.VerbGet && req.Component == graph.ComponentBody
	if cacheable {
		cacheKey = cache.KeyFor(req.Path, values)
		cached, err = t.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache get error")
		}
	}

	enc, err := t.encodeRequest(req, values)
	if err != nil {
		return graph.RawResult{}, &Error{Class: ErrorClassClient, Message: "build request", Err: err}
	}

	// POSTs are sent once: a graph write is not idempotent
	retryCfg := t.config.Retry
	if req.Verb == graph.VerbPost {
		retryCfg.MaxAttempts = 1
	}

	logger.Debug().Str("component", req.Component.String()).Msg("Executing graph request")

	var result graph.RawResult
	err = retryWithBackoff(ctx, retryCfg, logger, func() (ErrorClass, error) {
		httpReq, err := t.newHTTPRequest(ctx, enc)
		if err != nil {
			return ErrorClassClient, &Error{Class: ErrorClassClient, Message: "build request", Err: err}
		}
		if cache.AddConditionalHeaders(httpReq, cached) {
			logger.Debug().Msg("Making conditional request")
		}

		res, class, err := t.exchange(ctx, httpReq, req, cacheKey, cached, cacheable, logger)
		if err != nil {
			httpErrorsTotal.WithLabelValues(string(class)).Inc()
			return class, err
		}
		result = res
		return "", nil
	})
	if err != nil {
		return graph.RawResult{}, err
	}

	if t.cache != nil && req.Verb != graph.VerbGet && !hasErrorKey(result.Body) {
		t.invalidate(ctx, req.Path, logger)
	}

	return result, nil
}

// admit applies shared usage gating and local pacing before a request.
func (t *Transport) admit(ctx context.Context, logger zerolog.Logger) error {
	if t.tracker != nil {
		allowed, err := t.tracker.ShouldAllowRequest(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return &Error{Class: ErrorClassNetwork, Message: "cancelled while throttled", Err: ctx.Err()}
		case err != nil:
			// Usage state is advisory; a Redis hiccup must not stop traffic
			logger.Warn().Err(err).Msg("Usage check failed")
		case !allowed:
			return &Error{Class: ErrorClassRateLimit, Message: "app usage critical", Err: ErrUsageBlocked}
		}
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return &Error{Class: ErrorClassNetwork, Message: "rate limiter wait", Err: err}
		}
	}
	return nil
}

// exchange runs one HTTP round trip and turns the response into a raw result
// or a classified transport error.
func (t *Transport) exchange(ctx context.Context, httpReq *http.Request, req graph.Request, key cache.CacheKey, cached *cache.CacheEntry, cacheable bool, logger zerolog.Logger) (graph.RawResult, ErrorClass, error) {
	method := httpReq.Method

	client := t.httpClient
	if req.Component == graph.ComponentHeaders {
		client = t.noRedirect
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		httpRequestsTotal.WithLabelValues(method, "network_error").Inc()
		logger.Error().Err(err).Msg("HTTP request failed")
		return graph.RawResult{}, ErrorClassNetwork, &Error{Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if t.tracker != nil {
		if err := t.tracker.UpdateFromHeaders(ctx, resp.Header); err != nil {
			logger.Warn().Err(err).Msg("Failed to update usage from headers")
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return graph.RawResult{}, ErrorClassNetwork, &Error{StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Message: "read body", Err: err}
	}

	status := resp.StatusCode
	if status == http.StatusNotModified && cached != nil {
		logger.Debug().Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()
		t.refreshCached(ctx, key, resp.Header, logger)
		body, status = cached.Data, http.StatusOK
	}

	if req.Component == graph.ComponentHeaders && status < http.StatusBadRequest {
		return graph.RawResult{Header: resp.Header.Clone()}, "", nil
	}

	decoded, decodeErr := decodeBody(body)

	if status < 200 || status >= 300 {
		// Structured errors are data for the dispatcher to raise
		if decodeErr == nil && hasErrorKey(decoded) {
			logger.Debug().Int("status", status).Msg("Structured error body")
			return graph.RawResult{Body: decoded, Header: resp.Header.Clone()}, "", nil
		}

		class := classifyStatus(status)
		logger.Warn().
			Int("status", status).
			Str("error_class", string(class)).
			Msg("Graph request error")
		return graph.RawResult{}, class, &Error{StatusCode: status, Class: class, Message: resp.Status}
	}

	if decodeErr != nil {
		return graph.RawResult{}, ErrorClassDecode, &Error{StatusCode: status, Class: ErrorClassDecode, Message: "decode body", Err: decodeErr}
	}

	if cacheable && resp.StatusCode == http.StatusOK && !hasErrorKey(decoded) {
		t.store(ctx, key, resp, body, logger)
	}

	return graph.RawResult{Body: decoded, Header: resp.Header.Clone()}, "", nil
}

func (t *Transport) store(ctx context.Context, key cache.CacheKey, resp *http.Response, body []byte, logger zerolog.Logger) {
	entry, err := cache.NewEntry(resp, body)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create cache entry")
		return
	}
	if entry == nil {
		return
	}
	if err := t.cache.Set(ctx, key, entry); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache response")
		return
	}
	logger.Debug().Dur("ttl", entry.TTL()).Msg("Cached response")
}

// invalidate drops cached reads of a path the request just wrote to.
func (t *Transport) invalidate(ctx context.Context, path string, logger zerolog.Logger) {
	if _, err := t.cache.InvalidatePath(ctx, path); err != nil {
		logger.Warn().Err(err).Msg("Failed to invalidate cached path")
	}
}

func (t *Transport) refreshCached(ctx context.Context, key cache.CacheKey, headers http.Header, logger zerolog.Logger) {
	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return
	}
	newExpires, err := http.ParseTime(expiresStr)
	if err != nil {
		return
	}
	if err := t.cache.UpdateTTL(ctx, key, newExpires); err != nil {
		logger.Warn().Err(err).Msg("Failed to update cache TTL")
	}
}

// decodeBody decodes a JSON body. An empty body decodes to nil, which the
// dispatcher treats as the outage sentinel.
func decodeBody(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func hasErrorKey(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	return m["error"] != nil
}

// classifyStatus categorizes a non-success status code.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// Close releases idle connections.
func (t *Transport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}
