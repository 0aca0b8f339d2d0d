package signals

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_GET(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   Signals
	}{
		{
			name:   "datastar query param",
			target: "/events?datastar=" + url.QueryEscape(`{"foo":"bar"}`),
			want:   Signals{"foo": "bar"},
		},
		{
			name:   "encoded component form",
			target: "/events?datastar=%7B%22foo%22%3A%22bar%22%7D",
			want:   Signals{"foo": "bar"},
		},
		{
			name:   "no query",
			target: "/events",
			want:   Signals{},
		},
		{
			name:   "plain params are nested",
			target: "/events?user[name]=joe&page=2",
			want:   Signals{"user": map[string]any{"name": "joe"}, "page": "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			got, err := Extract(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_GETMalformed(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/events?datastar=nope", nil)
	_, err := Extract(r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestExtract_POSTJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{ "foo": "bar" }`))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")

	got, err := Extract(r)
	require.NoError(t, err)
	assert.Equal(t, Signals{"foo": "bar"}, got)

	// body stays readable for later handlers
	rest, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, `{ "foo": "bar" }`, string(rest))
}

func TestExtract_POSTEmptyJSONBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/events", nil)
	r.Header.Set("Content-Type", "application/json")

	got, err := Extract(r)
	require.NoError(t, err)
	assert.Equal(t, Signals{}, got)
}

func TestExtract_POSTJSONArrayRejected(t *testing.T) {
	r := httptest.NewRequest(http.MethodPatch, "/events", strings.NewReader(`[1,2]`))
	r.Header.Set("Content-Type", "application/json")

	_, err := Extract(r)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestExtract_POSTForm(t *testing.T) {
	body := "user[name]=joe&user[email]=joe@email.com"
	r := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	got, err := Extract(r)
	require.NoError(t, err)
	assert.Equal(t, Signals{"user": map[string]any{"name": "joe", "email": "joe@email.com"}}, got)
}

func TestExtract_PUTMultipart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("user[name]", "joe"))
	require.NoError(t, mw.WriteField("tags[]", "a"))
	require.NoError(t, mw.WriteField("tags[]", "b"))
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPut, "/events", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())

	got, err := Extract(r)
	require.NoError(t, err)
	assert.Equal(t, "joe", got.String("user.name"))
	assert.Equal(t, []any{"a", "b"}, got["tags"])
}

func TestExtract_ParsedPayload(t *testing.T) {
	t.Run("event field", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`ignored`))
		r.Header.Set("Content-Type", "application/json")
		r = r.WithContext(WithParsedPayload(r.Context(), map[string]any{
			"event": map[string]any{"foo": "bar"},
		}))

		got, err := Extract(r)
		require.NoError(t, err)
		assert.Equal(t, Signals{"foo": "bar"}, got)
	})

	t.Run("no event field", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/events", nil)
		r = r.WithContext(WithParsedPayload(r.Context(), map[string]any{}))

		got, err := Extract(r)
		require.NoError(t, err)
		assert.Equal(t, Signals{}, got)
	})
}

func TestExtract_OtherContentType(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader("foo"))
	r.Header.Set("Content-Type", "text/plain")

	got, err := Extract(r)
	require.NoError(t, err)
	assert.Equal(t, Signals{}, got)
}

func TestSignals_GetAndClone(t *testing.T) {
	s := Signals{"user": map[string]any{"name": "joe", "tags": []any{"x"}}}

	v, ok := s.Get("user.name")
	assert.True(t, ok)
	assert.Equal(t, "joe", v)

	_, ok = s.Get("user.missing")
	assert.False(t, ok)
	_, ok = s.Get("user.name.deeper")
	assert.False(t, ok)

	c := s.Clone()
	c["user"].(map[string]any)["name"] = "ann"
	c["user"].(map[string]any)["tags"].([]any)[0] = "y"
	assert.Equal(t, "joe", s.String("user.name"))
	assert.Equal(t, "x", s["user"].(map[string]any)["tags"].([]any)[0])
}

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key  string
		path []string
		list bool
	}{
		{"a", []string{"a"}, false},
		{"a[b]", []string{"a", "b"}, false},
		{"a[b][c]", []string{"a", "b", "c"}, false},
		{"a[]", []string{"a"}, true},
		{"a[b][]", []string{"a", "b"}, true},
		{"a[b", []string{"a[b"}, false},
		{"a[][b]", []string{"a[][b]"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			path, list := splitKey(tt.key)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.list, list)
		})
	}
}

func TestExtract_LargeIntegersKeepPrecision(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{"id":9007199254740993,"ratio":0.25}`))
	r.Header.Set("Content-Type", "application/json")

	got, err := Extract(r)
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), got["id"])

	out, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":9007199254740993,"ratio":0.25}`, string(out))
	assert.Contains(t, string(out), "9007199254740993")
}

func TestExtract_TrailingDataRejected(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/events?datastar="+url.QueryEscape(`{"a":1}{"b":2}`), nil)
	_, err := Extract(r)
	assert.ErrorIs(t, err, ErrMalformed)
}
