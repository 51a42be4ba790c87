package monitoring

import (
	"time"

	"github.com/sells-group/research-brief/internal/cost"
)

// MetricsSnapshot holds a point-in-time view of pipeline health over the
// lookback window.
type MetricsSnapshot struct {
	Total            int     `json:"total"`
	Complete         int     `json:"complete"`
	Failed           int     `json:"failed"`
	FailRate         float64 `json:"fail_rate"`
	ActiveExecutions int     `json:"active_executions"`
	TotalTokens      int     `json:"total_tokens"`
	AvgTokens        int     `json:"avg_tokens"`
	AvgDurationSecs  float64 `json:"avg_duration_seconds"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector aggregates finished executions from the metrics registry.
type Collector struct {
	svc  *Service
	calc *cost.Calculator
}

// NewCollector creates a metrics collector over the registry. calc may be nil
// to skip cost estimation.
func NewCollector(svc *Service, calc *cost.Calculator) *Collector {
	return &Collector{svc: svc, calc: calc}
}

// Collect builds a snapshot over the given lookback window.
func (c *Collector) Collect(lookbackHours int) *MetricsSnapshot {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	finished := c.svc.finishedSince(cutoff)

	snap.ActiveExecutions = c.svc.Snapshot().ActiveExecutions
	snap.Total = len(finished)

	var totalDuration float64
	for _, m := range finished {
		if m.Error != "" {
			snap.Failed++
		} else {
			snap.Complete++
		}
		snap.TotalTokens += m.TotalTokens()
		totalDuration += m.TotalDuration()
	}

	if snap.Total > 0 {
		snap.FailRate = float64(snap.Failed) / float64(snap.Total)
		snap.AvgTokens = snap.TotalTokens / snap.Total
		snap.AvgDurationSecs = totalDuration / float64(snap.Total)
	}

	if c.calc != nil {
		// Token counts are not split by direction once aggregated; assume an
		// even input/output split for the estimate.
		half := snap.TotalTokens / 2
		snap.EstimatedCostUSD = c.calc.Gemini(half, snap.TotalTokens-half)
	}

	return snap
}

// finishedSince returns retained records that finished at or after cutoff.
func (s *Service) finishedSince(cutoff time.Time) []*ExecutionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ExecutionMetrics
	for _, r := range s.retained {
		if r.finishedAt.Before(cutoff) {
			continue
		}
		out = append(out, r.metrics.clone())
	}
	return out
}
