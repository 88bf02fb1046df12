package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Sternrassler/graph-api-client/pkg/graph"
	"github.com/Sternrassler/graph-api-client/pkg/metrics"
	"github.com/Sternrassler/graph-api-client/pkg/pagination"
	"github.com/Sternrassler/graph-api-client/pkg/transport"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// server exposes read-only graph operations over HTTP.
type server struct {
	client   *graph.Client
	redis    *redis.Client
	maxPages int
	timeout  time.Duration
	logger   zerolog.Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(s.redis))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/graph", func(g chi.Router) {
		g.Get("/", s.fetchObjects)
		g.Get("/search", s.search)
		g.Get("/{id}", s.fetchObject)
		g.Get("/{id}/picture", s.fetchPicture)
		g.Get("/{id}/{connection}", s.fetchConnections)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// readyHandler reports whether Redis answers. Without Redis the proxy is
// always ready.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func (s *server) fetchObject(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	obj, err := s.client.FetchObject(ctx, chi.URLParam(r, "id"), queryParams(r, nil))
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	if obj == nil {
		writeOutage(w)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (s *server) fetchObjects(w http.ResponseWriter, r *http.Request) {
	ids := splitIDs(r.URL.Query().Get("ids"))
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "ids is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	objects, err := s.client.FetchObjects(ctx, ids, queryParams(r, []string{"ids"}))
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	if objects == nil {
		writeOutage(w)
		return
	}
	writeJSON(w, http.StatusOK, objects)
}

func (s *server) fetchPicture(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	location, err := s.client.FetchPicture(ctx, chi.URLParam(r, "id"), queryParams(r, nil))
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	if location == "" {
		writeOutage(w)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

func (s *server) search(w http.ResponseWriter, r *http.Request) {
	terms := r.URL.Query().Get("q")
	if terms == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "q is required")
		return
	}

	s.serveCollection(w, r, func(ctx context.Context) (*pagination.Collection, error) {
		return s.client.Search(ctx, terms, queryParams(r, []string{"q", "all"}))
	})
}

func (s *server) fetchConnections(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	connection := chi.URLParam(r, "connection")

	s.serveCollection(w, r, func(ctx context.Context) (*pagination.Collection, error) {
		return s.client.FetchConnections(ctx, id, connection, queryParams(r, []string{"all"}))
	})
}

type collectionResponse struct {
	Data   []any   `json:"data"`
	Paging *paging `json:"paging,omitempty"`
}

type paging struct {
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// serveCollection writes the first page, or with ?all=true every page up to
// maxPages.
func (s *server) serveCollection(w http.ResponseWriter, r *http.Request, first func(context.Context) (*pagination.Collection, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	coll, err := first(ctx)
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	if coll == nil {
		writeOutage(w)
		return
	}

	if r.URL.Query().Get("all") != "true" {
		resp := collectionResponse{Data: coll.Items()}
		if p := coll.Paging(); p.Next != "" || p.Previous != "" {
			resp.Paging = &paging{Next: p.Next, Previous: p.Previous}
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	opts := pagination.DefaultWalkOptions()
	opts.MaxPages = s.maxPages
	items, err := pagination.Collect(ctx, coll, opts)
	if err != nil {
		s.writeGraphError(w, r, err)
		return
	}
	if items == nil {
		items = []any{}
	}
	writeJSON(w, http.StatusOK, collectionResponse{Data: items})
}

// writeGraphError maps dispatch failures onto proxy status codes.
func (s *server) writeGraphError(w http.ResponseWriter, r *http.Request, err error) {
	logger := s.logger.With().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Logger()

	var apiErr *graph.APIError
	var tErr *transport.Error
	switch {
	case errors.As(err, &apiErr):
		logger.Warn().Err(err).Msg("Graph API error")
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"type":          apiErr.Type,
				"message":       apiErr.Message,
				"code":          apiErr.Code,
				"error_subcode": apiErr.Subcode,
				"fbtrace_id":    apiErr.TraceID,
			},
		})
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn().Err(err).Msg("Graph request timed out")
		writeError(w, http.StatusGatewayTimeout, "Timeout", "graph request timed out")
	case errors.As(err, &tErr):
		logger.Error().Err(err).Str("error_class", string(tErr.Class)).Msg("Graph transport error")
		writeError(w, http.StatusBadGateway, "TransportError", err.Error())
	default:
		logger.Error().Err(err).Msg("Graph request failed")
		writeError(w, http.StatusInternalServerError, "InternalError", err.Error())
	}
}

// queryParams forwards the query string as graph parameters, minus the
// keys the proxy itself consumes.
func queryParams(r *http.Request, skip []string) graph.Params {
	params := graph.Params{}
	for key, values := range r.URL.Query() {
		if len(values) == 0 || slices.Contains(skip, key) {
			continue
		}
		params[key] = strings.Join(values, ",")
	}
	return params
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func writeOutage(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, "Outage", "graph returned no data")
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"type": errType, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
