package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// WalkOptions bounds a traversal.
type WalkOptions struct {
	// Direction to follow (default: next)
	Direction Direction

	// MaxPages caps the number of pages visited, including the first one.
	// Zero means no cap.
	MaxPages int

	// PageTimeout applies to each page fetch (default: no extra timeout)
	PageTimeout time.Duration
}

// DefaultWalkOptions returns a forward walk capped at 10 pages.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		Direction: DirectionNext,
		MaxPages:  10,
	}
}

// Walk calls fn for first and for every page reached by following cursors
// in opts.Direction. It stops at a missing cursor, a nil page (the server
// had no data), MaxPages, or the first error.
func Walk(ctx context.Context, first *Collection, opts WalkOptions, fn func(*Collection) error) error {
	if first == nil {
		return nil
	}
	dir := opts.Direction
	if dir == "" {
		dir = DirectionNext
	}

	start := time.Now()
	pages := 0
	for page := first; page != nil; {
		if err := fn(page); err != nil {
			return err
		}
		pages++

		if opts.MaxPages > 0 && pages >= opts.MaxPages {
			log.Debug().
				Int("pages", pages).
				Str("direction", string(dir)).
				Msg("Walk stopped at page cap")
			break
		}

		next, err := fetchNeighbour(ctx, page, dir, opts.PageTimeout)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", pages+1, err)
		}
		page = next
	}

	log.Debug().
		Int("pages", pages).
		Str("direction", string(dir)).
		Dur("duration", time.Since(start)).
		Msg("Walk complete")

	return nil
}

// Collect gathers the items of every page Walk visits, in traversal order.
func Collect(ctx context.Context, first *Collection, opts WalkOptions) ([]any, error) {
	var items []any
	err := Walk(ctx, first, opts, func(c *Collection) error {
		items = append(items, c.items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func fetchNeighbour(ctx context.Context, page *Collection, dir Direction, timeout time.Duration) (*Collection, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return page.resolvePage(ctx, dir)
}
