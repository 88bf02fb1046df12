package cache

import (
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultTTL is how long an entry is kept when the response has no Expires header
	DefaultTTL = 10 * time.Minute
)

// NewEntry builds a CacheEntry from a response and its already-read body.
// Responses without a validator (ETag or Last-Modified) cannot be revalidated
// and yield a nil entry.
func NewEntry(resp *http.Response, body []byte) (*CacheEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	entry := &CacheEntry{
		Data:     body,
		ETag:     resp.Header.Get("ETag"),
		Headers:  resp.Header.Clone(),
		CachedAt: time.Now(),
		Expires:  parseExpires(resp.Header),
	}

	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	if !entry.Validatable() {
		return nil, nil
	}
	return entry, nil
}

// parseExpires returns the Expires header time, or now + DefaultTTL when the
// header is missing, unparsable or already in the past. Entries are always
// revalidated, so keeping them past Expires is safe.
func parseExpires(headers http.Header) time.Time {
	fallback := time.Now().Add(DefaultTTL)

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return fallback
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil || expires.Before(fallback) {
		return fallback
	}
	return expires
}

// AddConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since
// headers to req. It reports whether a header was added.
func AddConditionalHeaders(req *http.Request, entry *CacheEntry) bool {
	if entry == nil || req == nil {
		return false
	}

	// Prefer ETag over Last-Modified (more accurate)
	switch {
	case entry.ETag != "":
		req.Header.Set("If-None-Match", entry.ETag)
	case !entry.LastModified.IsZero():
		req.Header.Set("If-Modified-Since", entry.LastModified.Format(http.TimeFormat))
	default:
		return false
	}

	ConditionalRequestsSent.Inc()
	return true
}
