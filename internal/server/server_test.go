package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/research-brief/internal/config"
	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/monitoring"
	"github.com/sells-group/research-brief/internal/store"
	"github.com/sells-group/research-brief/pkg/langsmith"
)

type fakeRunner struct {
	brief *model.FinalBrief
	err   error

	gotRequestID string
	gotRequest   model.ResearchRequest
}

func (f *fakeRunner) Run(_ context.Context, requestID string, req model.ResearchRequest) (*model.FinalBrief, error) {
	f.gotRequestID = requestID
	f.gotRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return f.brief, nil
}

func (f *fakeRunner) BreakerStates() map[string]string {
	return map[string]string{"search": "closed", "reader": "closed"}
}

func validBrief(topic string) *model.FinalBrief {
	return &model.FinalBrief{
		RequestID:        "req-1",
		Topic:            topic,
		ExecutiveSummary: strings.Repeat("summary ", 20),
		DetailedAnalysis: strings.Repeat("analysis ", 30),
		KeyFindings:      []string{"finding one", "finding two"},
		ConfidenceScore:  7.5,
		ResearchDepth:    model.DepthMedium,
		CreatedAt:        time.Now().UTC(),
	}
}

func testServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:              0,
			RequestsPerMinute: 600,
			BurstLimit:        100,
		},
		Tracing: config.TracingConfig{
			Endpoint: "https://api.smith.langchain.com",
			Project:  "research-brief",
		},
	}
}

func newTestServer(t *testing.T, runner Runner, st store.Store) http.Handler {
	t.Helper()
	monitor := monitoring.NewService(monitoring.DefaultRetentionConfig())
	return New(testServerConfig(), runner, monitor, st, langsmith.Noop()).Handler()
}

func postBrief(t *testing.T, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/brief", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestHealth(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, &fakeRunner{}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, Version, health["version"])
	assert.NotEmpty(t, health["timestamp"])
}

func TestCreateBrief_Success(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{brief: validBrief("quantum computing")}
	handler := newTestServer(t, runner, nil)

	rec := postBrief(t, handler, map[string]any{"topic": "  quantum computing  "})
	require.Equal(t, http.StatusOK, rec.Code)

	var brief model.FinalBrief
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&brief))
	assert.Equal(t, "quantum computing", brief.Topic)

	// The server normalizes before running and generates a request id.
	assert.Equal(t, "quantum computing", runner.gotRequest.Topic)
	assert.Equal(t, 2, runner.gotRequest.Depth)
	assert.NotEmpty(t, runner.gotRequestID)
}

func TestCreateBrief_ClientRequestID(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{brief: validBrief("ai safety")}
	handler := newTestServer(t, runner, nil)

	rec := postBrief(t, handler, map[string]any{"topic": "ai safety", "request_id": "client-42"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "client-42", runner.gotRequestID)
}

func TestCreateBrief_InvalidJSON(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, &fakeRunner{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/brief", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", decodeError(t, rec).Code)
}

func TestCreateBrief_ValidationError(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	handler := newTestServer(t, runner, nil)

	rec := postBrief(t, handler, map[string]any{"topic": "ab"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeError(t, rec)
	assert.Equal(t, "validation_error", env.Code)
	assert.Equal(t, "topic", env.Details["field"])
	assert.Empty(t, runner.gotRequestID)
}

func TestCreateBrief_DepthOutOfRange(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, &fakeRunner{}, nil)
	rec := postBrief(t, handler, map[string]any{"topic": "valid topic", "depth": 4})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "depth", decodeError(t, rec).Details["field"])
}

func TestCreateBrief_QualityFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: &model.PipelineError{
		Stage:    "synthesize",
		Attempts: 1,
		Err:      &model.QualityError{Confidence: 3.2, Threshold: 5.0},
	}}
	handler := newTestServer(t, runner, nil)

	rec := postBrief(t, handler, map[string]any{"topic": "obscure topic"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	env := decodeError(t, rec)
	assert.Equal(t, "quality_below_threshold", env.Code)
	assert.Equal(t, 3.2, env.Details["confidence"])
	assert.Equal(t, 5.0, env.Details["threshold"])
}

func TestCreateBrief_PipelineFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: &model.PipelineError{
		Stage:    "search",
		Attempts: 3,
		Err:      eris.New("search provider unavailable"),
	}}
	handler := newTestServer(t, runner, nil)

	rec := postBrief(t, handler, map[string]any{"topic": "some topic"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	env := decodeError(t, rec)
	assert.Equal(t, "pipeline_failure", env.Code)
	assert.Equal(t, "search", env.Details["stage"])
	assert.Equal(t, float64(3), env.Details["attempts"])
}

func TestCreateBrief_DuplicateRequestID(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: eris.Wrap(model.ErrDuplicateRequest, "pipeline")}
	handler := newTestServer(t, runner, nil)

	rec := postBrief(t, handler, map[string]any{"topic": "some topic", "request_id": "dup-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_request", decodeError(t, rec).Code)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, &fakeRunner{}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, "operational", resp["status"])
	features := resp["features"].(map[string]any)
	assert.Equal(t, false, features["langsmith_tracing"])
	assert.Equal(t, true, features["node_level_metrics"])
	mon := resp["monitoring"].(map[string]any)
	assert.Equal(t, "research-brief", mon["langsmith_project"])
	providers := resp["providers"].(map[string]any)
	assert.Equal(t, "closed", providers["search"])
}

func TestGetExecution(t *testing.T) {
	t.Parallel()

	monitor := monitoring.NewService(monitoring.DefaultRetentionConfig())
	require.NoError(t, monitor.StartExecution("exec-1"))
	require.NoError(t, monitor.AddNodeMetrics("exec-1", monitoring.NodeMetric{
		Stage:      "search",
		Duration:   1.2,
		TokensUsed: 50,
		Status:     monitoring.NodeSuccess,
	}))
	handler := New(testServerConfig(), &fakeRunner{}, monitor, nil, langsmith.Noop()).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/execution/exec-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics monitoring.ExecutionMetrics
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&metrics))
	assert.Equal(t, "exec-1", metrics.RequestID)
	assert.Len(t, metrics.Nodes["search"], 1)
}

func TestGetExecution_NotFound(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, &fakeRunner{}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/execution/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)
}

func TestBriefEndpoints_WithStore(t *testing.T) {
	t.Parallel()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	brief := validBrief("stored topic")
	require.NoError(t, st.SaveBrief(context.Background(), "req-1", "user-1", 2, brief))

	handler := newTestServer(t, &fakeRunner{}, st)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/briefs?user_id=user-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Briefs []store.StoredBrief `json:"briefs"`
		Count  int                 `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "req-1", list.Briefs[0].RequestID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/briefs/req-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stored store.StoredBrief
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stored))
	assert.Equal(t, "stored topic", stored.Topic)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/briefs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBriefEndpoints_NoStore(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, &fakeRunner{}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/briefs", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	cfg := testServerConfig()
	cfg.Server.RequestsPerMinute = 60
	cfg.Server.BurstLimit = 1
	monitor := monitoring.NewService(monitoring.DefaultRetentionConfig())
	handler := New(cfg, &fakeRunner{brief: validBrief("t")}, monitor, nil, langsmith.Noop()).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/execution/x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/execution/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeError(t, rec).Code)

	// Health is outside the rate limited group.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStoreFilter(t *testing.T) {
	t.Parallel()

	filter := storeFilter("u1", "ai", "50", "10")
	assert.Equal(t, store.BriefFilter{UserID: "u1", Topic: "ai", Limit: 50, Offset: 10}, filter)

	filter = storeFilter("", "", "", "")
	assert.Equal(t, 20, filter.Limit)
	assert.Zero(t, filter.Offset)

	filter = storeFilter("", "", "9999", "-1")
	assert.Equal(t, 20, filter.Limit)
	assert.Zero(t, filter.Offset)
}
