package graph

// Kind tags the shape of a resolved response.
type Kind int

const (
	// KindOutage is the "no data available" sentinel. It is not an error.
	KindOutage Kind = iota
	KindObject
	KindCollection
	KindRedirect
	KindValue
)

var kindNames = [...]string{"outage", "object", "collection", "redirect", "value"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Object is a graph object as returned by the server.
type Object map[string]any

// Payload is a response resolved once at the dispatch boundary.
//
// Object is set for KindObject and KindCollection (a collection is still a
// mapping; Items and Paging are extracted from it). Location is set for
// KindRedirect and Value for KindValue.
type Payload struct {
	Kind     Kind
	Object   Object
	Items    []any
	Paging   map[string]any
	Location string
	Value    any
}

// IsOutage reports whether the server returned no data.
func (p Payload) IsOutage() bool {
	return p.Kind == KindOutage
}

// resolvePayload turns a raw result into a Payload, or an *APIError when the
// body carries the error shape.
func resolvePayload(req Request, raw RawResult) (Payload, error) {
	if body, ok := raw.Body.(map[string]any); ok {
		if errVal := body["error"]; errVal != nil {
			return Payload{}, newAPIError(errVal)
		}
	}

	if req.Component == ComponentHeaders {
		return Payload{Kind: KindRedirect, Location: raw.Header.Get("Location")}, nil
	}

	switch body := raw.Body.(type) {
	case nil:
		return Payload{Kind: KindOutage}, nil
	case bool:
		if !body {
			return Payload{Kind: KindOutage}, nil
		}
		return Payload{Kind: KindValue, Value: body}, nil
	case map[string]any:
		if items, ok := body["data"].([]any); ok {
			paging, _ := body["paging"].(map[string]any)
			return Payload{Kind: KindCollection, Object: body, Items: items, Paging: paging}, nil
		}
		return Payload{Kind: KindObject, Object: body}, nil
	default:
		return Payload{Kind: KindValue, Value: body}, nil
	}
}
