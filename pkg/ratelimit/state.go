// Package ratelimit tracks the graph API's application usage and gates
// requests before the platform starts rejecting them.
//
// The server reports usage as percentages of the app's hourly budget in the
// X-App-Usage header, e.g. {"call_count":28,"total_time":25,"total_cputime":25}.
// The highest of the three drives the decision. State lives in Redis so
// every client instance sharing an app id sees the same budget.
package ratelimit

import (
	"time"
)

// Redis keys for usage state storage.
const (
	RedisKeyUsagePercent = "graph:rate_limit:usage_pct"
	RedisKeyLastUpdate   = "graph:rate_limit:last_update"
)

// HeaderAppUsage is the response header carrying app usage percentages.
const HeaderAppUsage = "X-App-Usage"

// UsageWindow is the length of the server's usage accounting window.
// State older than this no longer reflects the current budget.
const UsageWindow = time.Hour

// Thresholds for rate limit decisions, in percent of the usage budget.
const (
	// UsageThresholdCritical blocks all requests at or above this usage.
	UsageThresholdCritical = 95

	// UsageThresholdWarning throttles requests at or above this usage.
	UsageThresholdWarning = 75

	// UsageThresholdHealthy marks normal operation below this usage.
	UsageThresholdHealthy = 50
)

// AppUsage is the decoded X-App-Usage header.
type AppUsage struct {
	CallCount    int `json:"call_count"`
	TotalTime    int `json:"total_time"`
	TotalCPUTime int `json:"total_cputime"`
}

// Max returns the highest of the reported percentages.
func (u AppUsage) Max() int {
	return max(u.CallCount, u.TotalTime, u.TotalCPUTime)
}

// UsageState represents the current app usage as last reported by the server.
type UsageState struct {
	// UsagePercent is the highest usage percentage reported.
	UsagePercent int `json:"usage_pct"`

	// LastUpdate is when the server last reported usage.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when UsagePercent < UsageThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *UsageState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *UsageState) NeedsCriticalBlock() bool {
	return s.UsagePercent >= UsageThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *UsageState) NeedsThrottling() bool {
	return s.UsagePercent >= UsageThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns how long until the reported usage falls out of the
// accounting window. Returns 0 if it already has.
func (s *UsageState) TimeUntilReset() time.Duration {
	duration := time.Until(s.LastUpdate.Add(UsageWindow))
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current UsagePercent.
func (s *UsageState) UpdateHealth() {
	s.IsHealthy = s.UsagePercent < UsageThresholdHealthy
}
