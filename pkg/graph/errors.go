package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrMissingCredential is returned before any network call when a write,
	// delete or unlike is attempted without an access token.
	ErrMissingCredential = errors.New("access token required")

	// ErrUnexpectedPayload is returned when a response has a shape the
	// operation cannot represent (e.g. a list where an object was expected).
	ErrUnexpectedPayload = errors.New("unexpected payload shape")
)

// APIError is a structured failure reported by the server in the response body.
type APIError struct {
	Type    string
	Message string
	Code    int
	Subcode int
	TraceID string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// IsAPIError reports whether err is an *APIError, optionally of the given type.
// An empty errType matches any API error.
func IsAPIError(err error, errType string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return errType == "" || apiErr.Type == errType
}

// newAPIError builds an APIError from the value found under a payload's
// "error" key. Legacy responses carry a bare string there.
func newAPIError(raw any) *APIError {
	fields, ok := raw.(map[string]any)
	if !ok {
		msg, _ := raw.(string)
		if msg == "" {
			msg = fmt.Sprint(raw)
		}
		return &APIError{Type: "Exception", Message: msg}
	}

	apiErr := &APIError{
		Type:    stringField(fields, "type"),
		Message: stringField(fields, "message"),
		Code:    intField(fields, "code"),
		Subcode: intField(fields, "error_subcode"),
		TraceID: stringField(fields, "fbtrace_id"),
	}
	if apiErr.Type == "" {
		apiErr.Type = "Exception"
	}
	return apiErr
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
