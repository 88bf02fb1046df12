package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// tokenParam is the query parameter carrying the access token.
const tokenParam = "access_token"

// CacheKey identifies a cached graph response.
type CacheKey struct {
	// Path is the graph path (e.g., "123/feed")
	Path string

	// Params are the request parameters without the access token
	Params url.Values

	// TokenHash is the hex SHA-256 prefix of the access token ("" when anonymous)
	TokenHash string
}

// KeyFor builds a key from a path and its full parameter set, moving the
// access token out of the parameters into TokenHash.
func KeyFor(path string, params url.Values) CacheKey {
	key := CacheKey{Path: path}

	if len(params) > 0 {
		key.Params = make(url.Values, len(params))
		for k, v := range params {
			if k == tokenParam {
				continue
			}
			key.Params[k] = v
		}
	}

	if token := params.Get(tokenParam); token != "" {
		sum := sha256.Sum256([]byte(token))
		key.TokenHash = hex.EncodeToString(sum[:8])
	}

	return key
}

// String generates a deterministic cache key string.
// Format: graph:cache:path:param1=val1:param2=val2:tok=abcd
//
// Parameter names and values are query-escaped so separators inside a value
// cannot collide with another parameter set.
//
// Example:
//
//	graph:cache:123/feed:limit=25:tok=9f86d081884c7d65
func (k CacheKey) String() string {
	parts := []string{"graph", "cache"}

	parts = append(parts, pathSegment(k.Path))

	// Params sorted for determinism
	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			vals := make([]string, len(k.Params[key]))
			for i, v := range k.Params[key] {
				vals[i] = url.QueryEscape(v)
			}
			parts = append(parts, fmt.Sprintf("%s=%s", url.QueryEscape(key), strings.Join(vals, ",")))
		}
	}

	if k.TokenHash != "" {
		parts = append(parts, "tok="+k.TokenHash)
	}

	return strings.Join(parts, ":")
}

// pathSegment is the path part of a key. The multi-id lookup has an empty
// path and is stored under "-".
func pathSegment(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "-"
	}
	return path
}
