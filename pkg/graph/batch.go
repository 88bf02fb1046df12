package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchConfig holds batch fetcher configuration.
type BatchConfig struct {
	// ChunkSize is the number of ids per call.
	// The server caps a multi-id lookup at 50 ids.
	ChunkSize int

	// MaxConcurrency is the maximum number of parallel calls
	MaxConcurrency int

	// Timeout per chunk fetch
	Timeout time.Duration
}

// DefaultBatchConfig returns a safe default configuration.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		ChunkSize:      50,
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// BatchFetcher fetches long id lists as several multi-id calls run in parallel.
type BatchFetcher struct {
	client *Client
	config BatchConfig
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(client *Client, config BatchConfig) *BatchFetcher {
	defaults := DefaultBatchConfig()
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaults.ChunkSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &BatchFetcher{
		client: client,
		config: config,
	}
}

// FetchObjects fetches every id with FetchObjects calls of at most ChunkSize
// ids. Any failing chunk fails the whole batch; chunks for which the server
// returned no data contribute nothing.
func (bf *BatchFetcher) FetchObjects(ctx context.Context, ids []string, params Params) (map[string]Object, error) {
	start := time.Now()
	chunks := chunkIDs(ids, bf.config.ChunkSize)

	results := make(map[string]Object, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			chunkCtx, cancel := context.WithTimeout(gctx, bf.config.Timeout)
			defer cancel()

			objects, err := bf.client.FetchObjects(chunkCtx, chunk, params)
			if err != nil {
				bf.client.logger.Warn().
					Err(err).
					Int("chunk", i).
					Int("ids", len(chunk)).
					Msg("Chunk fetch failed")
				return fmt.Errorf("chunk %d: %w", i, err)
			}

			mu.Lock()
			for id, obj := range objects {
				results[id] = obj
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	bf.client.logger.Debug().
		Int("ids", len(ids)).
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results, nil
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
