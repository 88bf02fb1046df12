package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for usage tracking.
var (
	graphAppUsagePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graph_app_usage_percent",
		Help: "Highest app usage percentage last reported by the graph API",
	})

	graphRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_rate_limit_blocks_total",
		Help: "Total number of requests blocked due to critical app usage",
	})

	graphRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to high app usage",
	})
)

// DefaultThrottleDelay is the pause applied to each request in the warning band.
const DefaultThrottleDelay = 1 * time.Second

// Tracker monitors app usage and gates requests.
type Tracker struct {
	redis         *redis.Client
	logger        zerolog.Logger
	throttleDelay time.Duration
}

// NewTracker creates a new usage tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		logger:        logger,
		throttleDelay: DefaultThrottleDelay,
	}
}

// SetThrottleDelay overrides the warning-band pause (for testing).
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// GetState retrieves the current usage state from Redis.
// Returns a default healthy state if nothing was recorded in the current window.
func (t *Tracker) GetState(ctx context.Context) (*UsageState, error) {
	usage, err := t.redis.Get(ctx, RedisKeyUsagePercent).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get usage percent: %w", err)
	}
	missingUsage := errors.Is(err, redis.Nil)

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	if missingUsage || errors.Is(err, redis.Nil) {
		t.logger.Debug().Msg("No usage state in Redis, returning default healthy state")
		return &UsageState{
			UsagePercent: 0,
			LastUpdate:   time.Now(),
			IsHealthy:    true,
		}, nil
	}

	var lastUpdate time.Time
	if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
		return nil, fmt.Errorf("parse last update: %w", err)
	}

	state := &UsageState{
		UsagePercent: usage,
		LastUpdate:   lastUpdate,
	}
	state.UpdateHealth()

	return state, nil
}

// ParseAppUsage decodes an X-App-Usage header value.
func ParseAppUsage(value string) (AppUsage, error) {
	var usage AppUsage
	if err := json.Unmarshal([]byte(value), &usage); err != nil {
		return AppUsage{}, fmt.Errorf("parse %s header: %w", HeaderAppUsage, err)
	}
	return usage, nil
}

// UpdateFromHeaders parses the X-App-Usage header and updates Redis state.
// Responses without the header leave the state untouched.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	raw := headers.Get(HeaderAppUsage)
	if raw == "" {
		return nil
	}

	usage, err := ParseAppUsage(raw)
	if err != nil {
		return err
	}

	state := &UsageState{
		UsagePercent: usage.Max(),
		LastUpdate:   time.Now(),
	}
	state.UpdateHealth()

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	// Both keys expire with the accounting window
	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyUsagePercent, state.UsagePercent, UsageWindow)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, UsageWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store usage state in redis: %w", err)
	}

	graphAppUsagePercent.Set(float64(state.UsagePercent))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("usage_pct", state.UsagePercent).
			Msg("App usage CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("usage_pct", state.UsagePercent).
			Msg("App usage WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("usage_pct", state.UsagePercent).
			Bool("is_healthy", state.IsHealthy).
			Msg("App usage state updated")
	}

	return nil
}

// ShouldAllowRequest checks whether a request may go out.
// Returns false if usage is critical. In the warning band it waits for the
// throttle delay (or until ctx is done) and then allows the request.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get usage state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("usage_pct", state.UsagePercent).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("App usage critical - blocking request")

		graphRateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("usage_pct", state.UsagePercent).
			Msg("App usage warning - throttling request")

		graphRateLimitThrottlesTotal.Inc()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(t.throttleDelay):
		}
	}

	return true, nil
}
