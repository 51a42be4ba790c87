package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/research-brief/internal/cost"
)

func finishExecution(t *testing.T, svc *Service, id string, tokens int, errDetail string) {
	t.Helper()
	require.NoError(t, svc.StartExecution(id))
	require.NoError(t, svc.AddNodeMetrics(id, NodeMetric{
		Stage:      "search",
		Duration:   0.5,
		TokensUsed: tokens,
		Status:     NodeSuccess,
	}))
	_, err := svc.FinishExecution(id, errDetail)
	require.NoError(t, err)
}

func TestCollect(t *testing.T) {
	t.Parallel()

	svc := NewService(DefaultRetentionConfig())
	finishExecution(t, svc, "ok-1", 1000, "")
	finishExecution(t, svc, "ok-2", 2000, "")
	finishExecution(t, svc, "bad-1", 500, "stage search failed")
	require.NoError(t, svc.StartExecution("active-1"))

	collector := NewCollector(svc, cost.NewCalculator(cost.DefaultRates()))
	snap := collector.Collect(24)

	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 2, snap.Complete)
	assert.Equal(t, 1, snap.Failed)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 1e-9)
	assert.Equal(t, 1, snap.ActiveExecutions)
	assert.Equal(t, 3500, snap.TotalTokens)
	assert.Equal(t, 1166, snap.AvgTokens)
	assert.Positive(t, snap.EstimatedCostUSD)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollect_Empty(t *testing.T) {
	t.Parallel()

	collector := NewCollector(NewService(DefaultRetentionConfig()), nil)
	snap := collector.Collect(24)

	assert.Zero(t, snap.Total)
	assert.Zero(t, snap.FailRate)
	assert.Zero(t, snap.EstimatedCostUSD)
}

func TestCollect_LookbackWindow(t *testing.T) {
	t.Parallel()

	svc := NewService(RetentionConfig{MaxRetained: 10, TTL: 48 * time.Hour})
	now := time.Now().UTC()
	svc.nowFunc = func() time.Time { return now.Add(-30 * time.Hour) }
	finishExecution(t, svc, "old", 100, "")
	svc.nowFunc = func() time.Time { return now }
	finishExecution(t, svc, "recent", 200, "")

	snap := NewCollector(svc, nil).Collect(24)
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, 200, snap.TotalTokens)
}
