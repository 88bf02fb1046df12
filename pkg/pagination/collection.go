package pagination

import (
	"context"
	"iter"
	"slices"
)

// Direction selects which cursor a page resolution follows.
type Direction string

const (
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
)

// PageRequest is a repeatable request descriptor decoded from a cursor URL.
type PageRequest struct {
	Path   string
	Params map[string]string
}

// PageFetcher resolves a PageRequest into the next collection.
// It returns a nil collection and nil error when the server had no data.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (*Collection, error)
}

// Paging holds the cursor URLs of a collection. Empty means absent.
type Paging struct {
	Next     string
	Previous string
}

// cursor returns the URL for the given direction.
func (p Paging) cursor(dir Direction) string {
	if dir == DirectionPrevious {
		return p.Previous
	}
	return p.Next
}

// Collection is one page of a connection or search result.
type Collection struct {
	items   []any
	paging  Paging
	fetcher PageFetcher
}

// New builds a collection over items, in order. The fetcher is shared and
// may be nil when the collection is known to be terminal.
func New(items []any, paging Paging, fetcher PageFetcher) *Collection {
	return &Collection{
		items:   slices.Clone(items),
		paging:  paging,
		fetcher: fetcher,
	}
}

// FromPayload builds a collection from a response mapping carrying "data"
// and an optional "paging" block.
func FromPayload(payload map[string]any, fetcher PageFetcher) *Collection {
	items, _ := payload["data"].([]any)
	return New(items, ParsePaging(payload["paging"]), fetcher)
}

// ParsePaging extracts the next/previous URLs from a raw paging block.
func ParsePaging(raw any) Paging {
	m, ok := raw.(map[string]any)
	if !ok {
		return Paging{}
	}
	next, _ := m["next"].(string)
	previous, _ := m["previous"].(string)
	return Paging{Next: next, Previous: previous}
}

// Len returns the number of items on this page.
func (c *Collection) Len() int {
	return len(c.items)
}

// At returns the i-th item. It panics if i is out of range, like a slice.
func (c *Collection) At(i int) any {
	return c.items[i]
}

// Items returns a copy of the page's items in server order.
func (c *Collection) Items() []any {
	return slices.Clone(c.items)
}

// All iterates over index/item pairs in server order.
func (c *Collection) All() iter.Seq2[int, any] {
	return slices.All(c.items)
}

// Values iterates over the items in server order.
func (c *Collection) Values() iter.Seq[any] {
	return slices.Values(c.items)
}

// Paging returns the cursor URLs of this page.
func (c *Collection) Paging() Paging {
	return c.paging
}

// HasNext reports whether a next cursor is present.
func (c *Collection) HasNext() bool {
	return c.paging.Next != ""
}

// HasPrevious reports whether a previous cursor is present.
func (c *Collection) HasPrevious() bool {
	return c.paging.Previous != ""
}

// NextPage fetches the page after this one. It returns nil, nil when there
// is no next cursor, without touching the network.
func (c *Collection) NextPage(ctx context.Context) (*Collection, error) {
	return c.resolvePage(ctx, DirectionNext)
}

// PreviousPage fetches the page before this one. It returns nil, nil when
// there is no previous cursor, without touching the network.
func (c *Collection) PreviousPage(ctx context.Context) (*Collection, error) {
	return c.resolvePage(ctx, DirectionPrevious)
}

func (c *Collection) resolvePage(ctx context.Context, dir Direction) (*Collection, error) {
	cursor := c.paging.cursor(dir)
	if cursor == "" {
		return nil, nil
	}
	if c.fetcher == nil {
		return nil, ErrNoFetcher
	}

	req, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	return c.fetcher.FetchPage(ctx, req)
}
