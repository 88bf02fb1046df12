package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Sternrassler/graph-api-client/pkg/graph"
)

// encodedRequest is a graph request resolved to its HTTP form. The body is
// encoded once so every attempt sends the same bytes, including uploads
// read from a stream.
type encodedRequest struct {
	method      string
	target      string
	body        []byte
	contentType string
}

// encodeRequest resolves the HTTP form of a graph request. GET and DELETE
// carry the parameters in the query string; POST sends a form, or a
// multipart body when the parameters hold file uploads.
func (t *Transport) encodeRequest(req graph.Request, values url.Values) (encodedRequest, error) {
	enc := encodedRequest{
		method: string(req.Verb),
		target: t.config.BaseURL + "/" + strings.TrimLeft(req.Path, "/"),
	}

	switch req.Verb {
	case graph.VerbPost:
		if uploads := req.Params.Uploads(); len(uploads) > 0 {
			buf, ct, err := encodeMultipart(values, uploads)
			if err != nil {
				return encodedRequest{}, err
			}
			enc.body, enc.contentType = buf.Bytes(), ct
		} else {
			enc.body = []byte(values.Encode())
			enc.contentType = "application/x-www-form-urlencoded"
		}
	case graph.VerbGet, graph.VerbDelete:
		if len(values) > 0 {
			enc.target += "?" + values.Encode()
		}
	default:
		return encodedRequest{}, fmt.Errorf("unsupported verb %q", req.Verb)
	}

	return enc, nil
}

// newHTTPRequest builds a fresh HTTP request for one attempt.
func (t *Transport) newHTTPRequest(ctx context.Context, enc encodedRequest) (*http.Request, error) {
	var body io.Reader
	if enc.body != nil {
		body = bytes.NewReader(enc.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, enc.method, enc.target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", t.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	if enc.contentType != "" {
		httpReq.Header.Set("Content-Type", enc.contentType)
	}

	return httpReq, nil
}

// encodeMultipart writes the flat values as form fields followed by one
// file part per upload. Parts are ordered by name so bodies are reproducible.
func encodeMultipart(values url.Values, uploads map[string]*graph.FileUpload) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, values.Get(k)); err != nil {
			return nil, "", fmt.Errorf("write field %q: %w", k, err)
		}
	}

	names := make([]string, 0, len(uploads))
	for name := range uploads {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writeUpload(w, name, uploads[name]); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

func writeUpload(w *multipart.Writer, name string, upload *graph.FileUpload) error {
	src := upload.Reader
	filename := upload.Filename

	if src == nil {
		if upload.Path == "" {
			return fmt.Errorf("upload %q has neither path nor reader", name)
		}
		f, err := os.Open(upload.Path)
		if err != nil {
			return fmt.Errorf("open upload %q: %w", name, err)
		}
		defer f.Close()
		src = f
		if filename == "" {
			filename = filepath.Base(upload.Path)
		}
	}
	if filename == "" {
		filename = name
	}

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, filename))
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create part %q: %w", name, err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy upload %q: %w", name, err)
	}
	return nil
}
