package reader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://example.com/article", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"code": 200,
			"data": {
				"title": "An Article",
				"url": "https://example.com/article",
				"content": "# An Article\n\nBody text.",
				"usage": {"tokens": 120}
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Read(context.Background(), "https://example.com/article")

	require.NoError(t, err)
	assert.Equal(t, "An Article", got.Title)
	assert.Equal(t, "https://example.com/article", got.URL)
	assert.Contains(t, got.Content, "Body text.")
	assert.Equal(t, 120, got.Tokens)
}

func TestRead_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`service unavailable`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://example.com")

	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.HTTPStatus())
}

func TestRead_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://example.com")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestRead_DirectFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "research-brief/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Direct Page</title><script>var x = 1;</script></head>
<body><h1>Direct Page</h1><p>Visible &amp; readable text.</p></body></html>`))
	}))
	defer srv.Close()

	client := NewClient("") // no key: direct mode
	got, err := client.Read(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, "Direct Page", got.Title)
	assert.Contains(t, got.Content, "Visible & readable text.")
	assert.NotContains(t, got.Content, "var x")
	assert.NotContains(t, got.Content, "<p>")
}

func TestRead_DirectFallbackError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient("")
	_, err := client.Read(context.Background(), srv.URL)

	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.HTTPStatus())
}

func TestStripMarkup(t *testing.T) {
	t.Parallel()

	html := `<div>  First   line </div>
<style>.a { color: red }</style>
<span>Second &lt;tag&gt; line</span>`

	text := stripMarkup(html)
	assert.Contains(t, text, "First line")
	assert.Contains(t, text, "Second <tag> line")
	assert.NotContains(t, text, "color: red")
}

func TestDecodeCharset(t *testing.T) {
	t.Parallel()

	// "café" in ISO-8859-1.
	latin1 := []byte{'c', 'a', 'f', 0xe9}

	decoded, err := decodeCharset(latin1, "text/html; charset=iso-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "café", decoded)

	// Unknown charset passes through unchanged.
	passthrough, err := decodeCharset([]byte("plain"), "text/html; charset=not-a-charset")
	require.NoError(t, err)
	assert.Equal(t, "plain", passthrough)

	// Missing content type passes through.
	missing, err := decodeCharset([]byte("plain"), "")
	require.NoError(t, err)
	assert.Equal(t, "plain", missing)
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient("my-key")
	hc := c.(*httpClient)
	assert.Equal(t, "my-key", hc.apiKey)
	assert.Equal(t, "https://r.jina.ai", hc.baseURL)
	assert.NotNil(t, hc.http)
	assert.Equal(t, 30*time.Second, hc.http.Timeout)
}
