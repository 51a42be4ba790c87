// Package monitoring tracks per-request execution metrics independently of
// pipeline logic. The Service owns every ExecutionMetrics record for the
// lifetime of its request and keeps a bounded set of finished records so the
// API can answer /execution/{id} queries after completion.
package monitoring

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/model"
)

// NodeStatus is the outcome of one stage attempt.
type NodeStatus string

const (
	NodeSuccess NodeStatus = "success"
	NodeFailure NodeStatus = "failure"
)

// NodeMetric records one stage attempt. Immutable once recorded.
type NodeMetric struct {
	Stage      string     `json:"stage"`
	Attempt    int        `json:"attempt"`
	Duration   float64    `json:"duration_seconds"`
	TokensUsed int        `json:"tokens_used"`
	Status     NodeStatus `json:"status"`
	Timestamp  time.Time  `json:"timestamp"`
	Error      string     `json:"error,omitempty"`
}

// ExecutionMetrics tracks one request through the pipeline. Nodes holds every
// attempt per stage in attempt order, so a retried stage leaves one entry per
// attempt.
type ExecutionMetrics struct {
	RequestID  string                  `json:"request_id"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
	Nodes      map[string][]NodeMetric `json:"node_metrics"`
	Error      string                  `json:"error,omitempty"`
}

// TotalTokens sums token counts across every recorded attempt.
func (m *ExecutionMetrics) TotalTokens() int {
	var total int
	for _, attempts := range m.Nodes {
		for _, nm := range attempts {
			total += nm.TokensUsed
		}
	}
	return total
}

// TotalDuration returns the wall-clock duration in seconds, or the elapsed
// time so far for an unfinished execution.
func (m *ExecutionMetrics) TotalDuration() float64 {
	if m.FinishedAt != nil {
		return m.FinishedAt.Sub(m.StartedAt).Seconds()
	}
	return time.Since(m.StartedAt).Seconds()
}

// TokenBreakdown returns per-stage token totals.
func (m *ExecutionMetrics) TokenBreakdown() map[string]int {
	breakdown := make(map[string]int, len(m.Nodes))
	for stage, attempts := range m.Nodes {
		for _, nm := range attempts {
			breakdown[stage] += nm.TokensUsed
		}
	}
	return breakdown
}

// NodeBreakdown returns one summary entry per stage: the final attempt's
// duration and status plus the attempt count and stage token total.
func (m *ExecutionMetrics) NodeBreakdown() map[string]map[string]any {
	breakdown := make(map[string]map[string]any, len(m.Nodes))
	for stage, attempts := range m.Nodes {
		if len(attempts) == 0 {
			continue
		}
		last := attempts[len(attempts)-1]
		var tokens int
		for _, nm := range attempts {
			tokens += nm.TokensUsed
		}
		breakdown[stage] = map[string]any{
			"duration_seconds": last.Duration,
			"tokens_used":      tokens,
			"status":           string(last.Status),
			"attempts":         len(attempts),
			"timestamp":        last.Timestamp,
		}
	}
	return breakdown
}

func (m *ExecutionMetrics) clone() *ExecutionMetrics {
	cp := &ExecutionMetrics{
		RequestID: m.RequestID,
		StartedAt: m.StartedAt,
		Error:     m.Error,
		Nodes:     make(map[string][]NodeMetric, len(m.Nodes)),
	}
	if m.FinishedAt != nil {
		t := *m.FinishedAt
		cp.FinishedAt = &t
	}
	for stage, attempts := range m.Nodes {
		cp.Nodes[stage] = append([]NodeMetric(nil), attempts...)
	}
	return cp
}

// RetentionConfig bounds how finished records are kept. Both knobs are
// configurable policy: the registry must not grow without bound.
type RetentionConfig struct {
	// MaxRetained caps the number of finished records (oldest evicted first).
	// Default: 256.
	MaxRetained int

	// TTL expires finished records by age. Default: 1h.
	TTL time.Duration
}

// DefaultRetentionConfig returns the default retention policy.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{MaxRetained: 256, TTL: time.Hour}
}

type retainedRecord struct {
	metrics    *ExecutionMetrics
	finishedAt time.Time
}

// Service is the process-wide metrics registry. Access is serialized on a
// single mutex; per-record contention does not occur because each request's
// metrics are mutated only by that request's pipeline.
type Service struct {
	cfg RetentionConfig

	mu       sync.Mutex
	active   map[string]*ExecutionMetrics
	retained map[string]*retainedRecord
	order    []string

	nowFunc func() time.Time
}

// NewService creates a metrics registry with the given retention policy.
func NewService(cfg RetentionConfig) *Service {
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 256
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &Service{
		cfg:      cfg,
		active:   make(map[string]*ExecutionMetrics),
		retained: make(map[string]*retainedRecord),
		nowFunc:  time.Now,
	}
}

// StartExecution registers a new active record for requestID.
func (s *Service) StartExecution(requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[requestID]; ok {
		return eris.Wrapf(model.ErrDuplicateRequest, "monitoring: start %s", requestID)
	}

	s.active[requestID] = &ExecutionMetrics{
		RequestID: requestID,
		StartedAt: s.nowFunc().UTC(),
		Nodes:     make(map[string][]NodeMetric),
	}
	zap.L().Debug("monitoring: started tracking execution", zap.String("request_id", requestID))
	return nil
}

// AddNodeMetrics appends one stage-attempt metric to an active record.
// Calling it after FinishExecution fails with ErrUnknownRequest: finished
// records are immutable.
func (s *Service) AddNodeMetrics(requestID string, nm NodeMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.active[requestID]
	if !ok {
		return eris.Wrapf(model.ErrUnknownRequest, "monitoring: add node metrics %s", requestID)
	}

	if nm.Timestamp.IsZero() {
		nm.Timestamp = s.nowFunc().UTC()
	}
	nm.Attempt = len(m.Nodes[nm.Stage]) + 1
	m.Nodes[nm.Stage] = append(m.Nodes[nm.Stage], nm)
	return nil
}

// FinishExecution stamps the end timestamp, moves the record from active to
// retained, and returns a snapshot. Passing a non-empty errDetail marks the
// execution as failed.
func (s *Service) FinishExecution(requestID, errDetail string) (*ExecutionMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.active[requestID]
	if !ok {
		return nil, eris.Wrapf(model.ErrUnknownRequest, "monitoring: finish %s", requestID)
	}

	now := s.nowFunc().UTC()
	m.FinishedAt = &now
	m.Error = errDetail

	delete(s.active, requestID)
	s.retained[requestID] = &retainedRecord{metrics: m, finishedAt: now}
	s.order = append(s.order, requestID)
	s.evictLocked(now)

	s.logExecution(m)
	return m.clone(), nil
}

// GetMetrics returns a snapshot of an active or retained record. It never
// fabricates a default record: unknown or expired ids fail with ErrNotFound.
func (s *Service) GetMetrics(requestID string) (*ExecutionMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(s.nowFunc().UTC())

	if m, ok := s.active[requestID]; ok {
		return m.clone(), nil
	}
	if r, ok := s.retained[requestID]; ok {
		return r.metrics.clone(), nil
	}
	return nil, eris.Wrapf(model.ErrNotFound, "monitoring: get %s", requestID)
}

// Summary is the aggregate view exposed by the /metrics endpoint.
type Summary struct {
	ActiveExecutions   int `json:"active_executions"`
	RetainedExecutions int `json:"retained_executions"`
}

// Snapshot returns the process-wide aggregate without exposing internal
// structures.
func (s *Service) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(s.nowFunc().UTC())
	return Summary{
		ActiveExecutions:   len(s.active),
		RetainedExecutions: len(s.retained),
	}
}

func (s *Service) evictLocked(now time.Time) {
	// TTL expiry first, then cap enforcement; order holds oldest first.
	kept := s.order[:0]
	for _, id := range s.order {
		r, ok := s.retained[id]
		if !ok {
			continue
		}
		if now.Sub(r.finishedAt) > s.cfg.TTL {
			delete(s.retained, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept

	for len(s.order) > s.cfg.MaxRetained {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.retained, oldest)
	}
}

func (s *Service) logExecution(m *ExecutionMetrics) {
	log := zap.L().With(zap.String("request_id", m.RequestID))
	if m.Error != "" {
		log.Error("execution failed",
			zap.String("error", m.Error),
			zap.Float64("duration_seconds", m.TotalDuration()),
			zap.Int("total_tokens", m.TotalTokens()),
		)
	} else {
		log.Info("execution complete",
			zap.Float64("duration_seconds", m.TotalDuration()),
			zap.Int("total_tokens", m.TotalTokens()),
		)
	}
	for stage, attempts := range m.Nodes {
		last := attempts[len(attempts)-1]
		log.Debug("node metrics",
			zap.String("stage", stage),
			zap.Int("attempts", len(attempts)),
			zap.Float64("duration_seconds", last.Duration),
			zap.String("status", string(last.Status)),
		)
	}
}
