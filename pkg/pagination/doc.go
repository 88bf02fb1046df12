// Package pagination provides cursor-based paginated collections for
// graph connection and search results.
//
// The server returns connection results as a data sequence plus a paging
// block holding fully-qualified "next" and "previous" URLs. A Collection
// keeps both and can resolve the neighbouring page on demand, without the
// caller tracking offsets:
//
//	feed, err := client.FetchConnections(ctx, "me", "feed", nil)
//	if err != nil {
//		return err
//	}
//	if feed == nil {
//		return nil // the server had no data
//	}
//	for _, post := range feed.All() {
//		// ...
//	}
//	older, err := feed.NextPage(ctx)
//	if older == nil && err == nil {
//		// no further page (or the server had no data)
//	}
//
// A cursor URL is decoded into a PageRequest (path plus flat parameters,
// list values comma-joined) and re-issued through a PageFetcher. Collections
// are immutable after construction and safe for concurrent use; pages are
// never cached.
//
// Walk and Collect follow cursors sequentially for callers that want more
// than one page.
package pagination
