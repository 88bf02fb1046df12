package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrMalformedCursor indicates a cursor URL that does not have the
	// <scheme>://<host>/<path>?<query> shape. It points at an integration
	// problem and is not recovered from.
	ErrMalformedCursor = errors.New("malformed cursor url")

	// ErrNoFetcher is returned when a collection with a cursor was built
	// without a PageFetcher.
	ErrNoFetcher = errors.New("collection has no page fetcher")
)

// DecodeCursor turns a cursor URL into a repeatable PageRequest.
//
// The path is everything between the host and the '?', without the
// leading slash. Each query key keeps a single value: repeated keys are
// comma-joined, which mirrors how list parameters such as ids are sent.
func DecodeCursor(rawURL string) (PageRequest, error) {
	if !strings.Contains(rawURL, "?") {
		return PageRequest{}, fmt.Errorf("%w: no query in %q", ErrMalformedCursor, rawURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return PageRequest{}, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return PageRequest{}, fmt.Errorf("%w: no host in %q", ErrMalformedCursor, rawURL)
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return PageRequest{}, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}

	params := make(map[string]string, len(query))
	for key, values := range query {
		params[key] = strings.Join(values, ",")
	}

	return PageRequest{
		Path:   strings.TrimPrefix(u.Path, "/"),
		Params: params,
	}, nil
}
