package graph

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/Sternrassler/graph-api-client/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSender records every request and answers from a handler.
type stubSender struct {
	mu      sync.Mutex
	calls   []Request
	handler func(Request) (RawResult, error)
}

func (s *stubSender) Send(_ context.Context, req Request) (RawResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if s.handler == nil {
		return RawResult{Body: map[string]any{"id": "1"}}, nil
	}
	return s.handler(req)
}

func (s *stubSender) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

func respondWith(body any) func(Request) (RawResult, error) {
	return func(Request) (RawResult, error) {
		return RawResult{Body: body}, nil
	}
}

func newTestClient(t *testing.T, sender Sender, token string) *Client {
	t.Helper()
	c, err := New(Config{Sender: sender, AccessToken: token})
	require.NoError(t, err)
	return c
}

func oauthError() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"type":    "OAuthException",
			"message": "Invalid token",
		},
	}
}

func TestNew_RequiresSender(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sender is required")
}

func TestHasCredential(t *testing.T) {
	assert.False(t, newTestClient(t, &stubSender{}, "").HasCredential())
	assert.True(t, newTestClient(t, &stubSender{}, "tok").HasCredential())
}

func TestFetchObject_IssuesSingleGet(t *testing.T) {
	for _, id := range []string{"4", "me", "1234567890", "page_name"} {
		t.Run(id, func(t *testing.T) {
			sender := &stubSender{handler: respondWith(map[string]any{"id": id})}
			c := newTestClient(t, sender, "")

			obj, err := c.FetchObject(context.Background(), id, Params{"fields": "id"})
			require.NoError(t, err)
			assert.Equal(t, id, obj["id"])

			calls := sender.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, id, calls[0].Path)
			assert.Equal(t, VerbGet, calls[0].Verb)
			assert.Equal(t, ComponentBody, calls[0].Component)
			assert.Equal(t, "id", calls[0].Params["fields"])
		})
	}
}

func TestFetchObject_AddsAccessToken(t *testing.T) {
	sender := &stubSender{}
	c := newTestClient(t, sender, "secret")

	params := Params{"fields": "id"}
	_, err := c.FetchObject(context.Background(), "me", params)
	require.NoError(t, err)

	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "secret", calls[0].Params["access_token"])
	assert.NotContains(t, params, "access_token", "caller params must not be mutated")
}

func TestFetchObject_Outage(t *testing.T) {
	for name, body := range map[string]any{"nil": nil, "false": false} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, &stubSender{handler: respondWith(body)}, "")

			obj, err := c.FetchObject(context.Background(), "4", nil)
			require.NoError(t, err)
			assert.Nil(t, obj)
		})
	}
}

func TestFetchObject_UnexpectedShape(t *testing.T) {
	c := newTestClient(t, &stubSender{handler: respondWith([]any{1, 2})}, "")

	_, err := c.FetchObject(context.Background(), "4", nil)
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
}

func TestFetchObjects_JoinsIDs(t *testing.T) {
	sender := &stubSender{handler: respondWith(map[string]any{
		"a": map[string]any{"id": "a"},
		"b": map[string]any{"id": "b"},
		"c": map[string]any{"id": "c"},
	})}
	c := newTestClient(t, sender, "")

	objects, err := c.FetchObjects(context.Background(), []string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	assert.Len(t, objects, 3)
	assert.Equal(t, "b", objects["b"]["id"])

	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "", calls[0].Path)
	assert.Equal(t, VerbGet, calls[0].Verb)
	assert.Equal(t, "a,b,c", calls[0].Params["ids"])
}

func TestFetchObjects_InvalidIDRaises(t *testing.T) {
	sender := &stubSender{handler: respondWith(map[string]any{
		"error": map[string]any{
			"type":    "OAuthException",
			"message": "(#803) Some of the aliases you requested do not exist: nope",
			"code":    803,
		},
	})}
	c := newTestClient(t, sender, "")

	objects, err := c.FetchObjects(context.Background(), []string{"4", "nope"}, nil)
	assert.Nil(t, objects)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 803, apiErr.Code)
}

func TestFetchObjects_NonObjectMember(t *testing.T) {
	c := newTestClient(t, &stubSender{handler: respondWith(map[string]any{"a": "oops"})}, "")

	_, err := c.FetchObjects(context.Background(), []string{"a"}, nil)
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
}

func TestWrites_RequireCredential(t *testing.T) {
	ops := map[string]func(*Client) error{
		"WriteObject": func(c *Client) error {
			_, err := c.WriteObject(context.Background(), "me", "feed", Params{"message": "hi"})
			return err
		},
		"DeleteObject": func(c *Client) error {
			_, err := c.DeleteObject(context.Background(), "123")
			return err
		},
		"WriteConnections": func(c *Client) error {
			_, err := c.WriteConnections(context.Background(), "123", "attending", nil)
			return err
		},
		"DeleteConnections": func(c *Client) error {
			_, err := c.DeleteConnections(context.Background(), "123", "attending", nil)
			return err
		},
		"UploadPicture": func(c *Client) error {
			_, err := c.UploadPicture(context.Background(), "", NewFileUpload("cat.jpg", "image/jpeg"), nil)
			return err
		},
		"PostWallMessage": func(c *Client) error {
			_, err := c.PostWallMessage(context.Background(), "hello", nil, "")
			return err
		},
		"PostComment": func(c *Client) error {
			_, err := c.PostComment(context.Background(), "123", "nice")
			return err
		},
		"Like": func(c *Client) error {
			_, err := c.Like(context.Background(), "123")
			return err
		},
		"Unlike": func(c *Client) error {
			_, err := c.Unlike(context.Background(), "123")
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			sender := &stubSender{}
			c := newTestClient(t, sender, "")

			err := op(c)
			assert.ErrorIs(t, err, ErrMissingCredential)
			assert.Empty(t, sender.Calls(), "no request may be sent without a credential")
		})
	}
}

func TestEveryOperation_RaisesAPIError(t *testing.T) {
	ops := map[string]func(*Client) error{
		"FetchObject": func(c *Client) error {
			_, err := c.FetchObject(context.Background(), "4", nil)
			return err
		},
		"FetchObjects": func(c *Client) error {
			_, err := c.FetchObjects(context.Background(), []string{"4"}, nil)
			return err
		},
		"WriteObject": func(c *Client) error {
			_, err := c.WriteObject(context.Background(), "me", "feed", nil)
			return err
		},
		"DeleteObject": func(c *Client) error {
			_, err := c.DeleteObject(context.Background(), "4")
			return err
		},
		"FetchConnections": func(c *Client) error {
			_, err := c.FetchConnections(context.Background(), "4", "friends", nil)
			return err
		},
		"WriteConnections": func(c *Client) error {
			_, err := c.WriteConnections(context.Background(), "4", "feed", nil)
			return err
		},
		"DeleteConnections": func(c *Client) error {
			_, err := c.DeleteConnections(context.Background(), "4", "likes", nil)
			return err
		},
		"FetchPicture": func(c *Client) error {
			_, err := c.FetchPicture(context.Background(), "4", nil)
			return err
		},
		"Search": func(c *Client) error {
			_, err := c.Search(context.Background(), "coffee", nil)
			return err
		},
		"FetchPage": func(c *Client) error {
			_, err := c.FetchPage(context.Background(), pagination.PageRequest{Path: "4/feed"})
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, &stubSender{handler: respondWith(oauthError())}, "tok")

			err := op(c)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, "OAuthException", apiErr.Type)
			assert.Equal(t, "Invalid token", apiErr.Message)
			assert.True(t, IsAPIError(err, "OAuthException"))
		})
	}
}

func TestTransportErrorPropagatesUnchanged(t *testing.T) {
	transportErr := errors.New("connection reset by peer")
	sender := &stubSender{handler: func(Request) (RawResult, error) {
		return RawResult{}, transportErr
	}}
	c := newTestClient(t, sender, "tok")

	_, err := c.FetchObject(context.Background(), "4", nil)
	assert.Same(t, transportErr, err)

	_, err = c.FetchConnections(context.Background(), "4", "feed", nil)
	assert.Same(t, transportErr, err)

	assert.Len(t, sender.Calls(), 2, "the dispatcher must not retry")
}

func TestFetchConnections_WrapsCollection(t *testing.T) {
	sender := &stubSender{handler: respondWith(map[string]any{
		"data": []any{1, 2, 3},
		"paging": map[string]any{
			"next": "https://graph.example.com/123/feed?limit=3&until=100",
		},
	})}
	c := newTestClient(t, sender, "")

	coll, err := c.FetchConnections(context.Background(), "123", "feed", Params{"limit": 3})
	require.NoError(t, err)
	require.NotNil(t, coll)
	assert.Equal(t, []any{1, 2, 3}, coll.Items())
	assert.True(t, coll.HasNext())
	assert.False(t, coll.HasPrevious())

	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "123/feed", calls[0].Path)
	assert.Equal(t, VerbGet, calls[0].Verb)
}

func TestNextPage_ReissuesDecodedCursor(t *testing.T) {
	sender := &stubSender{}
	sender.handler = func(req Request) (RawResult, error) {
		if len(sender.Calls()) == 1 {
			return RawResult{Body: map[string]any{
				"data":   []any{1, 2, 3},
				"paging": map[string]any{"next": "https://graph.example.com/123/feed?limit=3&until=100"},
			}}, nil
		}
		return RawResult{Body: map[string]any{"data": []any{4, 5}}}, nil
	}
	c := newTestClient(t, sender, "")

	first, err := c.FetchConnections(context.Background(), "123", "feed", nil)
	require.NoError(t, err)

	second, err := first.NextPage(context.Background())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, []any{4, 5}, second.Items())

	calls := sender.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "123/feed", calls[1].Path)
	assert.Equal(t, VerbGet, calls[1].Verb)
	assert.Equal(t, Params{"limit": "3", "until": "100"}, calls[1].Params)
}

func TestOutagePropagatesAsNilCollection(t *testing.T) {
	ops := map[string]func(*Client) (*pagination.Collection, error){
		"FetchConnections": func(c *Client) (*pagination.Collection, error) {
			return c.FetchConnections(context.Background(), "4", "feed", nil)
		},
		"Search": func(c *Client) (*pagination.Collection, error) {
			return c.Search(context.Background(), "coffee", nil)
		},
		"FetchPage": func(c *Client) (*pagination.Collection, error) {
			return c.FetchPage(context.Background(), pagination.PageRequest{Path: "4/feed"})
		},
	}

	for name, op := range ops {
		for _, body := range []any{nil, false} {
			t.Run(name, func(t *testing.T) {
				c := newTestClient(t, &stubSender{handler: respondWith(body)}, "")

				coll, err := op(c)
				assert.NoError(t, err)
				assert.Nil(t, coll)
			})
		}
	}
}

func TestFetchConnections_ObjectWhereCollectionExpected(t *testing.T) {
	c := newTestClient(t, &stubSender{handler: respondWith(map[string]any{"id": "4"})}, "")

	_, err := c.FetchConnections(context.Background(), "4", "feed", nil)
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
}

func TestSearch_MergesQuery(t *testing.T) {
	sender := &stubSender{handler: respondWith(map[string]any{"data": []any{}})}
	c := newTestClient(t, sender, "")

	params := Params{"type": "page"}
	coll, err := c.Search(context.Background(), "coffee", params)
	require.NoError(t, err)
	require.NotNil(t, coll)
	assert.Equal(t, 0, coll.Len())

	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Path)
	assert.Equal(t, "coffee", calls[0].Params["q"])
	assert.Equal(t, "page", calls[0].Params["type"])
	assert.NotContains(t, params, "q")
}

func TestFetchPicture_ReturnsLocation(t *testing.T) {
	sender := &stubSender{handler: func(Request) (RawResult, error) {
		h := http.Header{}
		h.Set("Location", "https://cdn.example.com/4.jpg")
		return RawResult{Header: h}, nil
	}}
	c := newTestClient(t, sender, "")

	location, err := c.FetchPicture(context.Background(), "4", Params{"type": "large"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/4.jpg", location)

	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "4/picture", calls[0].Path)
	assert.Equal(t, ComponentHeaders, calls[0].Component)
}

func TestWriteAndDelete_Routes(t *testing.T) {
	sender := &stubSender{handler: respondWith(true)}
	c := newTestClient(t, sender, "tok")
	ctx := context.Background()

	_, err := c.WriteObject(ctx, "me", "feed", Params{"message": "hi"})
	require.NoError(t, err)
	_, err = c.DeleteObject(ctx, "123")
	require.NoError(t, err)
	_, err = c.WriteConnections(ctx, "evt", "attending", nil)
	require.NoError(t, err)
	payload, err := c.DeleteConnections(ctx, "evt", "attending", nil)
	require.NoError(t, err)
	assert.Equal(t, KindValue, payload.Kind)
	assert.Equal(t, true, payload.Value)

	calls := sender.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, Request{Path: "me/feed", Verb: VerbPost, Params: Params{"message": "hi", "access_token": "tok"}}, calls[0])
	assert.Equal(t, "123", calls[1].Path)
	assert.Equal(t, VerbDelete, calls[1].Verb)
	assert.Equal(t, "evt/attending", calls[2].Path)
	assert.Equal(t, VerbPost, calls[2].Verb)
	assert.Equal(t, "evt/attending", calls[3].Path)
	assert.Equal(t, VerbDelete, calls[3].Verb)
}

func TestRoundTrip_ListParamsStableAcrossPages(t *testing.T) {
	base := "https://graph.example.com/"
	sender := &stubSender{}
	sender.handler = func(req Request) (RawResult, error) {
		values, err := req.Params.Values()
		if err != nil {
			return RawResult{}, err
		}
		values.Del("access_token")
		// echo the request back as both cursors
		cursor := base + req.Path + "?" + values.Encode()
		return RawResult{Body: map[string]any{
			"data":   []any{len(sender.Calls())},
			"paging": map[string]any{"next": cursor, "previous": cursor},
		}}, nil
	}
	c := newTestClient(t, sender, "")

	page, err := c.FetchConnections(context.Background(), "123", "feed", Params{
		"fields": []string{"id", "message", "from"},
		"limit":  2,
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		if i%2 == 0 {
			page, err = page.NextPage(context.Background())
		} else {
			page, err = page.PreviousPage(context.Background())
		}
		require.NoError(t, err)
		require.NotNil(t, page)
	}

	for _, call := range sender.Calls()[1:] {
		assert.Equal(t, "123/feed", call.Path)
		assert.Equal(t, "id,message,from", call.Params["fields"])
		assert.Equal(t, "2", call.Params["limit"])
	}
}
