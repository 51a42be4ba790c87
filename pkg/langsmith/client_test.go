package langsmith

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageEvent_Posted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/runs", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var event runEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		assert.Equal(t, "search", event.Name)
		assert.Equal(t, "chain", event.RunType)
		assert.Equal(t, "research-brief", event.SessionName)
		assert.Equal(t, "req-1", event.Extra["request_id"])
		assert.Equal(t, float64(2), event.Extra["attempt"])

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tracer := NewClient("test-key", "research-brief", WithEndpoint(srv.URL))
	tracer.StageEvent(context.Background(), "req-1", "search", map[string]any{"attempt": 2})

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, tracer.Enabled())
}

func TestStageEvent_FailureSwallowed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	srv.Close() // connection refused from here on

	tracer := NewClient("test-key", "research-brief", WithEndpoint(srv.URL))

	// Must not panic or block.
	tracer.StageEvent(context.Background(), "req-1", "fetch", nil)
}

func TestTraceURL(t *testing.T) {
	t.Parallel()

	tracer := NewClient("test-key", "research-brief")
	url := tracer.TraceURL("abc-123")

	assert.Equal(t, "https://smith.langchain.com/projects/p/research-brief/r/abc-123", url)
}

func TestNoop(t *testing.T) {
	t.Parallel()

	tracer := Noop()
	tracer.StageEvent(context.Background(), "req-1", "search", nil)

	assert.False(t, tracer.Enabled())
	assert.Empty(t, tracer.TraceURL("req-1"))
}
