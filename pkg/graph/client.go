// Package graph provides the request dispatcher of the graph API client:
// object and connection operations funnel through one call path that sends
// the request and normalizes the outcome into data, an API error, or a
// transport failure.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/graph-api-client/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for dispatch outcomes.
var (
	graphDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_dispatch_total",
		Help: "Total graph calls by verb and outcome",
	}, []string{"verb", "outcome"})

	graphAPIErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_api_errors_total",
		Help: "Total structured API errors by error type",
	}, []string{"type"})
)

// Dispatch outcomes used as metric labels and log fields.
const (
	outcomeOK                = "ok"
	outcomeOutage            = "outage"
	outcomeAPIError          = "api_error"
	outcomeTransportError    = "transport_error"
	outcomeMissingCredential = "missing_credential"
)

// Client dispatches graph operations through a Sender.
// It holds no per-call state and is safe for concurrent use.
type Client struct {
	sender      Sender
	accessToken string
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Sender performs the HTTP exchange (REQUIRED)
	Sender Sender

	// AccessToken is sent with every call. Writes and deletes require it.
	AccessToken string

	// Logger overrides the default component logger
	Logger *zerolog.Logger
}

// New creates a new graph client.
func New(cfg Config) (*Client, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}

	logger := log.With().Str("component", "graph-client").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		sender:      cfg.Sender,
		accessToken: cfg.AccessToken,
		logger:      logger,
	}, nil
}

// HasCredential reports whether an access token is configured.
func (c *Client) HasCredential() bool {
	return c.accessToken != ""
}

// FetchObject fetches a single object. A nil Object with a nil error means
// the server returned no data.
func (c *Client) FetchObject(ctx context.Context, id string, params Params) (Object, error) {
	payload, err := c.call(ctx, Request{Path: id, Verb: VerbGet, Params: params}, false)
	if err != nil {
		return nil, err
	}
	return objectOf(payload)
}

// FetchObjects fetches several objects in one call. The result maps each id
// to its object. If any id is invalid the server answers with an error and
// the whole call fails.
func (c *Client) FetchObjects(ctx context.Context, ids []string, params Params) (map[string]Object, error) {
	merged := params.Clone()
	merged["ids"] = strings.Join(ids, ",")

	payload, err := c.call(ctx, Request{Path: "", Verb: VerbGet, Params: merged}, false)
	if err != nil {
		return nil, err
	}
	obj, err := objectOf(payload)
	if err != nil || obj == nil {
		return nil, err
	}

	objects := make(map[string]Object, len(obj))
	for id, raw := range obj {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: object %q is %T", ErrUnexpectedPayload, id, raw)
		}
		objects[id] = m
	}
	return objects, nil
}

// WriteObject posts to parent/connection, e.g. WriteObject(ctx, "me", "feed", ...).
func (c *Client) WriteObject(ctx context.Context, parent, connection string, params Params) (Payload, error) {
	return c.call(ctx, Request{Path: joinPath(parent, connection), Verb: VerbPost, Params: params}, true)
}

// DeleteObject deletes the object with the given id.
func (c *Client) DeleteObject(ctx context.Context, id string) (Payload, error) {
	return c.call(ctx, Request{Path: id, Verb: VerbDelete}, true)
}

// FetchConnections fetches the first page of a connection. A nil collection
// with a nil error means the server returned no data.
func (c *Client) FetchConnections(ctx context.Context, id, connection string, params Params) (*pagination.Collection, error) {
	return c.fetchCollection(ctx, Request{Path: joinPath(id, connection), Verb: VerbGet, Params: params})
}

// WriteConnections posts to id/connection.
func (c *Client) WriteConnections(ctx context.Context, id, connection string, params Params) (Payload, error) {
	return c.call(ctx, Request{Path: joinPath(id, connection), Verb: VerbPost, Params: params}, true)
}

// DeleteConnections deletes on id/connection.
func (c *Client) DeleteConnections(ctx context.Context, id, connection string, params Params) (Payload, error) {
	return c.call(ctx, Request{Path: joinPath(id, connection), Verb: VerbDelete, Params: params}, true)
}

// FetchPicture returns the redirect target of an object's picture.
func (c *Client) FetchPicture(ctx context.Context, object string, params Params) (string, error) {
	payload, err := c.call(ctx, Request{
		Path:      joinPath(object, "picture"),
		Verb:      VerbGet,
		Params:    params,
		Component: ComponentHeaders,
	}, false)
	if err != nil {
		return "", err
	}
	return payload.Location, nil
}

// Search runs a search for terms. A nil collection with a nil error means the
// server returned no data.
func (c *Client) Search(ctx context.Context, terms string, params Params) (*pagination.Collection, error) {
	merged := params.Clone()
	merged["q"] = terms
	return c.fetchCollection(ctx, Request{Path: "search", Verb: VerbGet, Params: merged})
}

// FetchPage re-issues a request decoded from a cursor URL.
func (c *Client) FetchPage(ctx context.Context, req pagination.PageRequest) (*pagination.Collection, error) {
	params := make(Params, len(req.Params))
	for k, v := range req.Params {
		params[k] = v
	}
	return c.fetchCollection(ctx, Request{Path: req.Path, Verb: VerbGet, Params: params})
}

func (c *Client) fetchCollection(ctx context.Context, req Request) (*pagination.Collection, error) {
	payload, err := c.call(ctx, req, false)
	if err != nil {
		return nil, err
	}

	switch payload.Kind {
	case KindOutage:
		return nil, nil
	case KindCollection:
		return pagination.New(payload.Items, pagination.ParsePaging(payload.Paging), c), nil
	default:
		return nil, fmt.Errorf("%w: %s where a collection was expected", ErrUnexpectedPayload, payload.Kind)
	}
}

// call is the single dispatch path. Sender errors are returned unchanged;
// an error-shaped body becomes an *APIError.
func (c *Client) call(ctx context.Context, req Request, needsCredential bool) (Payload, error) {
	verb := string(req.Verb)

	if needsCredential && c.accessToken == "" {
		graphDispatchTotal.WithLabelValues(verb, outcomeMissingCredential).Inc()
		c.logger.Warn().
			Str("verb", verb).
			Str("path", req.Path).
			Msg("Write attempted without access token")
		return Payload{}, fmt.Errorf("%w: %s %s", ErrMissingCredential, verb, req.Path)
	}

	req.Params = req.Params.Clone()
	if c.accessToken != "" {
		req.Params["access_token"] = c.accessToken
	}

	raw, err := c.sender.Send(ctx, req)
	if err != nil {
		graphDispatchTotal.WithLabelValues(verb, outcomeTransportError).Inc()
		c.logger.Debug().Err(err).
			Str("verb", verb).
			Str("path", req.Path).
			Msg("Transport failure")
		return Payload{}, err
	}

	payload, err := resolvePayload(req, raw)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			graphAPIErrorsTotal.WithLabelValues(apiErr.Type).Inc()
		}
		graphDispatchTotal.WithLabelValues(verb, outcomeAPIError).Inc()
		c.logger.Warn().Err(err).
			Str("verb", verb).
			Str("path", req.Path).
			Msg("API error")
		return Payload{}, err
	}

	outcome := outcomeOK
	if payload.IsOutage() {
		outcome = outcomeOutage
	}
	graphDispatchTotal.WithLabelValues(verb, outcome).Inc()
	c.logger.Debug().
		Str("verb", verb).
		Str("path", req.Path).
		Str("kind", payload.Kind.String()).
		Msg("Graph call complete")

	return payload, nil
}

func objectOf(p Payload) (Object, error) {
	switch p.Kind {
	case KindOutage:
		return nil, nil
	case KindObject, KindCollection:
		return p.Object, nil
	default:
		return nil, fmt.Errorf("%w: %s where an object was expected", ErrUnexpectedPayload, p.Kind)
	}
}

func joinPath(id, connection string) string {
	return id + "/" + connection
}
