// Package langsmith posts stage events to a LangSmith-compatible tracing
// backend and composes trace URLs for finished requests.
package langsmith

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultEndpoint = "https://api.smith.langchain.com"

// Tracer records stage events for one request. Implementations must be safe
// for concurrent use; failures must never affect the pipeline outcome.
type Tracer interface {
	// StageEvent records one stage attempt for requestID.
	StageEvent(ctx context.Context, requestID, stage string, fields map[string]any)
	// TraceURL returns the externally visible trace URL for requestID, or
	// empty when tracing is disabled.
	TraceURL(requestID string) string
	// Enabled reports whether events are actually sent anywhere.
	Enabled() bool
}

// Noop returns a Tracer that drops everything. Used when tracing is disabled.
func Noop() Tracer {
	return noopTracer{}
}

type noopTracer struct{}

func (noopTracer) StageEvent(context.Context, string, string, map[string]any) {}
func (noopTracer) TraceURL(string) string                                     { return "" }
func (noopTracer) Enabled() bool                                              { return false }

// Option configures the client.
type Option func(*client)

// WithEndpoint overrides the default API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *client) {
		c.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.http = hc
	}
}

type client struct {
	apiKey   string
	endpoint string
	project  string
	http     *http.Client
}

// NewClient creates a tracing client for the given project.
func NewClient(apiKey, project string, opts ...Option) Tracer {
	c := &client{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		project:  project,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type runEvent struct {
	Name        string         `json:"name"`
	RunType     string         `json:"run_type"`
	SessionName string         `json:"session_name"`
	ReferenceID string         `json:"reference_example_id,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
}

// StageEvent posts one stage attempt. Errors are logged and swallowed: the
// trace is best-effort observability, never part of the pipeline contract.
func (c *client) StageEvent(ctx context.Context, requestID, stage string, fields map[string]any) {
	extra := map[string]any{"request_id": requestID}
	for k, v := range fields {
		extra[k] = v
	}

	now := time.Now().UTC()
	body, err := json.Marshal(runEvent{
		Name:        stage,
		RunType:     "chain",
		SessionName: c.project,
		Extra:       extra,
		StartTime:   now,
		EndTime:     now,
	})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/runs", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		zap.L().Debug("langsmith: stage event failed",
			zap.String("request_id", requestID),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= 300 {
		zap.L().Debug("langsmith: stage event rejected",
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
		)
	}
}

// TraceURL composes the hosted trace URL for one request.
func (c *client) TraceURL(requestID string) string {
	web := strings.Replace(c.endpoint, "api.", "", 1)
	return fmt.Sprintf("%s/projects/p/%s/r/%s", web, c.project, requestID)
}

func (c *client) Enabled() bool {
	return true
}
