// Package signals extracts the Datastar client signal tree from inbound requests.
//
// Browsers running the Datastar runtime send their signal store with every
// backend action: encoded as JSON in the `datastar` query parameter for
// non-mutating methods, and in the request body for POST, PUT and PATCH.
// Form submissions are supported too, with Rack-style bracket keys
// (`user[name]=joe`) decoded into nested objects.
package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

const (
	// QueryParam carries JSON-encoded signals on GET requests.
	QueryParam = "datastar"

	// eventKey is the sub-field of a framework pre-parsed payload that holds signals.
	eventKey = "event"

	// maxFormMemory bounds the in-memory part of a multipart body.
	maxFormMemory = 32 << 20

	pathSeparator = "."
)

// ErrMalformed reports a signals payload that is not a JSON object.
var ErrMalformed = errors.New("malformed signals payload")

// Signals is the client state tree: string keys to JSON-compatible values,
// arbitrarily nested. A Signals value handed out by a dispatcher is a shared
// snapshot and must be treated as read-only.
type Signals map[string]any

// Get looks up a dot-separated path ("user.name").
func (s Signals) Get(path string) (any, bool) {
	var cur any = map[string]any(s)
	for _, part := range strings.Split(path, pathSeparator) {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the value at path if it is a string.
func (s Signals) String(path string) string {
	v, _ := s.Get(path)
	str, _ := v.(string)
	return str
}

// Clone returns a deep copy of the tree.
func (s Signals) Clone() Signals {
	if s == nil {
		return Signals{}
	}
	return Signals(cloneMap(s))
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Signals:
		return m, true
	}
	return nil, false
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Signals:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

type payloadKey struct{}

// WithParsedPayload stores a body the surrounding framework has already
// decoded. Extract then reads signals from its "event" field instead of
// touching the request body.
func WithParsedPayload(ctx context.Context, payload map[string]any) context.Context {
	return context.WithValue(ctx, payloadKey{}, payload)
}

// ParsedPayload returns the payload stored by WithParsedPayload.
func ParsedPayload(ctx context.Context) (map[string]any, bool) {
	p, ok := ctx.Value(payloadKey{}).(map[string]any)
	return p, ok
}

// Extract derives the signal tree from r by method and content type.
// The request body, when read, is replaced so later handlers can read it again.
func Extract(r *http.Request) (Signals, error) {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return fromBody(r)
	default:
		return fromQuery(r.URL.Query())
	}
}

func fromQuery(q url.Values) (Signals, error) {
	if q.Has(QueryParam) {
		return decode([]byte(q.Get(QueryParam)))
	}
	return nestValues(q), nil
}

func fromBody(r *http.Request) (Signals, error) {
	if payload, ok := ParsedPayload(r.Context()); ok {
		if ev, ok := asMap(payload[eventKey]); ok {
			return Signals(cloneMap(ev)), nil
		}
		return Signals{}, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		body, err := readBody(r)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return Signals{}, nil
		}
		return decode(body)
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, fmt.Errorf("parse multipart signals: %w", err)
		}
		return nestValues(r.Form), nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form signals: %w", err)
		}
		return nestValues(r.Form), nil
	}

	return Signals{}, nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read signals body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// decode parses a JSON object. Numbers stay json.Number so integers beyond
// float64 precision survive a round trip back to the client.
func decode(data []byte) (Signals, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformed)
	}
	if out == nil {
		// literal null
		return Signals{}, nil
	}
	return Signals(out), nil
}
