package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Verb is the HTTP method of a graph request.
type Verb string

const (
	VerbGet    Verb = http.MethodGet
	VerbPost   Verb = http.MethodPost
	VerbDelete Verb = http.MethodDelete
)

// Component selects which part of the HTTP response the Sender surfaces.
type Component int

const (
	// ComponentBody surfaces the decoded JSON body.
	ComponentBody Component = iota

	// ComponentHeaders surfaces the response headers (e.g. a Location redirect).
	ComponentHeaders
)

// String returns the component name used in logs.
func (c Component) String() string {
	if c == ComponentHeaders {
		return "headers"
	}
	return "body"
}

// Params are the parameters of a graph request.
//
// Values may be strings, []string (sent comma-joined), numbers, bools,
// *FileUpload, or any JSON-encodable value.
type Params map[string]any

// Clone returns a shallow copy of p. A nil receiver yields an empty map.
func (p Params) Clone() Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Uploads returns the file-upload descriptors carried by p, keyed by parameter name.
func (p Params) Uploads() map[string]*FileUpload {
	var uploads map[string]*FileUpload
	for k, v := range p {
		if u, ok := v.(*FileUpload); ok && u != nil {
			if uploads == nil {
				uploads = make(map[string]*FileUpload)
			}
			uploads[k] = u
		}
	}
	return uploads
}

// Values flattens p into URL values, skipping file uploads.
// List-valued parameters are comma-joined so that cursor decoding
// reproduces the same flat string.
func (p Params) Values() (url.Values, error) {
	values := make(url.Values, len(p))
	for k, v := range p {
		s, ok, err := encodeParam(v)
		if err != nil {
			return nil, fmt.Errorf("encode param %q: %w", k, err)
		}
		if ok {
			values.Set(k, s)
		}
	}
	return values, nil
}

func encodeParam(v any) (string, bool, error) {
	switch val := v.(type) {
	case nil:
		return "", false, nil
	case *FileUpload:
		return "", false, nil
	case string:
		return val, true, nil
	case []string:
		return strings.Join(val, ","), true, nil
	case bool:
		return strconv.FormatBool(val), true, nil
	case int:
		return strconv.Itoa(val), true, nil
	case int64:
		return strconv.FormatInt(val, 10), true, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true, nil
	case json.Number:
		return val.String(), true, nil
	case fmt.Stringer:
		return val.String(), true, nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", false, err
		}
		return string(data), true, nil
	}
}

// FileUpload binds a readable byte source with its declared content type.
// Exactly one of Path or Reader is set.
type FileUpload struct {
	Path        string
	Reader      io.Reader
	Filename    string
	ContentType string
}

// NewFileUpload describes an upload read from a file on disk.
func NewFileUpload(path, contentType string) *FileUpload {
	return &FileUpload{Path: path, ContentType: contentType}
}

// NewStreamUpload describes an upload read from an open stream.
func NewStreamUpload(r io.Reader, filename, contentType string) *FileUpload {
	return &FileUpload{Reader: r, Filename: filename, ContentType: contentType}
}

// Request is a normalized graph request. It is built per call and never retained.
type Request struct {
	Path      string
	Verb      Verb
	Params    Params
	Component Component
}

// RawResult is what a Sender hands back for a request.
// Body is the decoded JSON body; a nil Body is the outage sentinel.
// Header is populated when the request asked for ComponentHeaders.
type RawResult struct {
	Body   any
	Header http.Header
}

// Sender performs the HTTP exchange for a Request. Any error it returns is
// treated as a transport failure and handed to the caller unchanged.
type Sender interface {
	Send(ctx context.Context, req Request) (RawResult, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, req Request) (RawResult, error)

// Send calls f(ctx, req).
func (f SenderFunc) Send(ctx context.Context, req Request) (RawResult, error) {
	return f(ctx, req)
}
