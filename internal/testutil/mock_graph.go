// Package testutil provides testing utilities for the graph API client.
package testutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MockGraphResponse defines the behavior for a mock graph endpoint response.
type MockGraphResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedFile is a file part received in a multipart request.
type RecordedFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// RecordedRequest is a request seen by the mock server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Files  map[string]RecordedFile
	Header http.Header
}

// MockGraph is a configurable mock graph server for testing.
type MockGraph struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	requests []RecordedRequest

	conditionalCount int
}

// NewMockGraph creates a new mock graph server.
func NewMockGraph() *MockGraph {
	mock := &MockGraph{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := record(r)

		mock.mu.Lock()
		mock.requests = append(mock.requests, rec)
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.conditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

func record(r *http.Request) RecordedRequest {
	rec := RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
	}

	if r.Method != http.MethodPost {
		return rec
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return rec
	}
	rec.Form = r.PostForm

	if r.MultipartForm != nil {
		rec.Form = url.Values(r.MultipartForm.Value)
		rec.Files = make(map[string]RecordedFile)
		for name, headers := range r.MultipartForm.File {
			if len(headers) == 0 {
				continue
			}
			fh := headers[0]
			f, err := fh.Open()
			if err != nil {
				continue
			}
			content, _ := io.ReadAll(f)
			f.Close()
			rec.Files[name] = RecordedFile{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Content:     content,
			}
		}
	}
	return rec
}

// URL returns the mock server URL.
func (m *MockGraph) URL() string {
	return m.server.URL
}

// PageURL returns an absolute cursor URL pointing back at the mock server.
func (m *MockGraph) PageURL(path string, params url.Values) string {
	u := m.server.URL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Close shuts down the mock server.
func (m *MockGraph) Close() {
	m.server.Close()
}

// Reset clears all recorded requests.
func (m *MockGraph) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.conditionalCount = 0
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGraph) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockGraph) SetResponse(path string, resp MockGraphResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGraph) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockGraph) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// Requests returns a copy of the recorded requests in arrival order.
func (m *MockGraph) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request, or false if none arrived.
func (m *MockGraph) LastRequest() (RecordedRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// defaultHandler answers unknown paths the way the graph does.
func (m *MockGraph) defaultHandler(w http.ResponseWriter, r *http.Request) {
	resp := NewErrorResponse(http.StatusBadRequest, "GraphMethodException", "Unsupported "+strings.ToLower(r.Method)+" request.", 100)
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(resp.Body))
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// NewObjectResponse creates a 200 OK response carrying obj, with cache validators.
func NewObjectResponse(obj map[string]any) MockGraphResponse {
	return MockGraphResponse{
		StatusCode: http.StatusOK,
		Body:       mustJSON(obj),
		Headers: map[string]string{
			"ETag":         `"test-etag-123"`,
			"Expires":      time.Now().Add(5 * time.Minute).Format(http.TimeFormat),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewCollectionResponse creates a 200 OK collection response. Empty cursors
// are left out of the paging block.
func NewCollectionResponse(items []any, next, previous string) MockGraphResponse {
	body := map[string]any{"data": items}
	paging := map[string]any{}
	if next != "" {
		paging["next"] = next
	}
	if previous != "" {
		paging["previous"] = previous
	}
	if len(paging) > 0 {
		body["paging"] = paging
	}

	return MockGraphResponse{
		StatusCode: http.StatusOK,
		Body:       mustJSON(body),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewErrorResponse creates a structured graph error response.
func NewErrorResponse(status int, errType, message string, code int) MockGraphResponse {
	return MockGraphResponse{
		StatusCode: status,
		Body: mustJSON(map[string]any{
			"error": map[string]any{
				"type":       errType,
				"message":    message,
				"code":       code,
				"fbtrace_id": "AbCdEf123",
			},
		}),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewOutageResponse creates a 200 OK response whose body is the literal false.
func NewOutageResponse() MockGraphResponse {
	return MockGraphResponse{
		StatusCode: http.StatusOK,
		Body:       "false",
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRedirectResponse creates a 302 Found response pointing at location.
func NewRedirectResponse(location string) MockGraphResponse {
	return MockGraphResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": location,
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response without a
// structured error body.
func NewRateLimitResponse() MockGraphResponse {
	return MockGraphResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       "rate limited",
		Headers: map[string]string{
			"Content-Type": "text/plain",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response without
// a structured error body.
func NewServerErrorResponse() MockGraphResponse {
	return MockGraphResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "internal server error",
		Headers: map[string]string{
			"Content-Type": "text/plain",
		},
	}
}

// NewConditionalHandler creates a handler that responds with 304 for conditional requests.
func NewConditionalHandler(etag string, data string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
