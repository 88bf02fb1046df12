package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoObjects answers a multi-id lookup with one object per requested id.
func echoObjects(req Request) (RawResult, error) {
	ids, _ := req.Params["ids"].(string)
	body := map[string]any{}
	for _, id := range strings.Split(ids, ",") {
		body[id] = map[string]any{"id": id}
	}
	return RawResult{Body: body}, nil
}

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("id%d", i)
	}
	return ids
}

func TestChunkIDs(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{n: 0, size: 50, want: nil},
		{n: 1, size: 50, want: []int{1}},
		{n: 50, size: 50, want: []int{50}},
		{n: 51, size: 50, want: []int{50, 1}},
		{n: 120, size: 50, want: []int{50, 50, 20}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_by_%d", tt.n, tt.size), func(t *testing.T) {
			var sizes []int
			for _, chunk := range chunkIDs(makeIDs(tt.n), tt.size) {
				sizes = append(sizes, len(chunk))
			}
			assert.Equal(t, tt.want, sizes)
		})
	}
}

func TestNewBatchFetcher_Defaults(t *testing.T) {
	bf := NewBatchFetcher(newTestClient(t, &stubSender{}, ""), BatchConfig{})
	assert.Equal(t, DefaultBatchConfig(), bf.config)
}

func TestBatchFetcher_FetchObjects(t *testing.T) {
	sender := &stubSender{handler: echoObjects}
	c := newTestClient(t, sender, "")
	bf := NewBatchFetcher(c, BatchConfig{ChunkSize: 50, MaxConcurrency: 2, Timeout: time.Second})

	ids := makeIDs(120)
	objects, err := bf.FetchObjects(context.Background(), ids, Params{"fields": "id"})
	require.NoError(t, err)
	assert.Len(t, objects, 120)
	assert.Equal(t, "id77", objects["id77"]["id"])

	calls := sender.Calls()
	require.Len(t, calls, 3)
	for _, call := range calls {
		assert.Equal(t, "", call.Path)
		assert.Equal(t, "id", call.Params["fields"])
		assert.LessOrEqual(t, len(strings.Split(call.Params["ids"].(string), ",")), 50)
	}
}

func TestBatchFetcher_ChunkErrorFailsBatch(t *testing.T) {
	sender := &stubSender{handler: func(req Request) (RawResult, error) {
		if strings.Contains(req.Params["ids"].(string), "id60") {
			return RawResult{Body: map[string]any{
				"error": map[string]any{"type": "OAuthException", "message": "alias does not exist", "code": 803},
			}}, nil
		}
		return echoObjects(req)
	}}
	c := newTestClient(t, sender, "")
	bf := NewBatchFetcher(c, BatchConfig{ChunkSize: 50})

	objects, err := bf.FetchObjects(context.Background(), makeIDs(100), nil)
	assert.Nil(t, objects)
	assert.True(t, IsAPIError(err, "OAuthException"))
	assert.Contains(t, err.Error(), "chunk 1")
}

func TestBatchFetcher_OutageChunkContributesNothing(t *testing.T) {
	sender := &stubSender{handler: func(req Request) (RawResult, error) {
		if strings.HasPrefix(req.Params["ids"].(string), "id0,") {
			return RawResult{Body: nil}, nil
		}
		return echoObjects(req)
	}}
	c := newTestClient(t, sender, "")
	bf := NewBatchFetcher(c, BatchConfig{ChunkSize: 10})

	objects, err := bf.FetchObjects(context.Background(), makeIDs(20), nil)
	require.NoError(t, err)
	assert.Len(t, objects, 10)
	assert.NotContains(t, objects, "id0")
	assert.Contains(t, objects, "id10")
}

func TestBatchFetcher_TransportError(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	sender := &stubSender{handler: func(Request) (RawResult, error) {
		return RawResult{}, boom
	}}
	bf := NewBatchFetcher(newTestClient(t, sender, ""), BatchConfig{})

	_, err := bf.FetchObjects(context.Background(), makeIDs(3), nil)
	assert.ErrorIs(t, err, boom)
}
