// Package pipeline orchestrates the research brief workflow: search, fetch,
// summarize, synthesize. Each stage runs under a bounded retry budget and
// records one node metric per attempt.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/research-brief/internal/config"
	"github.com/sells-group/research-brief/internal/cost"
	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/monitoring"
	"github.com/sells-group/research-brief/internal/resilience"
	"github.com/sells-group/research-brief/internal/store"
	"github.com/sells-group/research-brief/pkg/langsmith"
	"github.com/sells-group/research-brief/pkg/reader"
	"github.com/sells-group/research-brief/pkg/tavily"
)

// State is the orchestrator position in the stage sequence.
type State string

const (
	StateInitial      State = "initial"
	StateSearching    State = "searching"
	StateFetching     State = "fetching"
	StateSummarizing  State = "summarizing"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
	StateError        State = "error"
)

// Stage names used for metrics and tracing.
const (
	StageSearch     = "search"
	StageFetch      = "fetch"
	StageSummarize  = "summarize"
	StageSynthesize = "synthesize"
)

// Orchestrator drives one request through the stage sequence.
type Orchestrator struct {
	cfg      *config.Config
	store    store.Store
	monitor  *monitoring.Service
	search   tavily.Client
	reader   reader.Client
	llm      LLM
	tracer   langsmith.Tracer
	breakers *resilience.BreakerSet
	costCalc *cost.Calculator
	retry    resilience.RetryConfig

	// fetchLimiter throttles outbound page fetches across the whole process.
	fetchLimiter *rate.Limiter
}

// New creates an Orchestrator with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	monitor *monitoring.Service,
	searchClient tavily.Client,
	readerClient reader.Client,
	llm LLM,
	tracer langsmith.Tracer,
) *Orchestrator {
	concurrency := cfg.Pipeline.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Orchestrator{
		cfg:          cfg,
		store:        st,
		monitor:      monitor,
		search:       searchClient,
		reader:       readerClient,
		llm:          llm,
		tracer:       tracer,
		breakers:     resilience.NewBreakerSet(resilience.DefaultCircuitConfig()),
		costCalc:     cost.NewCalculator(cost.FromConfig(cfg.Pricing)),
		retry:        resilience.FromConfig(cfg.Pipeline.MaxAttempts, cfg.Pipeline.InitialBackoffMs, cfg.Pipeline.MaxBackoffMs),
		fetchLimiter: rate.NewLimiter(rate.Limit(concurrency), concurrency),
	}
}

// BreakerStates exposes provider circuit states for the metrics endpoint.
func (o *Orchestrator) BreakerStates() map[string]string {
	return o.breakers.States()
}

// usage accumulates billable units across stages. Fetch workers update it
// concurrently.
type usage struct {
	mu            sync.Mutex
	llmInput      int
	llmOutput     int
	readerTokens  int
	searchQueries int
}

func (u *usage) addLLM(in, out int) {
	u.mu.Lock()
	u.llmInput += in
	u.llmOutput += out
	u.mu.Unlock()
}

func (u *usage) addReader(tokens int) {
	u.mu.Lock()
	u.readerTokens += tokens
	u.mu.Unlock()
}

func (u *usage) addQueries(n int) {
	u.mu.Lock()
	u.searchQueries += n
	u.mu.Unlock()
}

// Run executes the full pipeline for one validated request. The returned
// brief carries generation metadata; on failure the error is a
// *model.PipelineError naming the failed stage and attempt count.
func (o *Orchestrator) Run(ctx context.Context, requestID string, req model.ResearchRequest) (*model.FinalBrief, error) {
	log := zap.L().With(
		zap.String("request_id", requestID),
		zap.String("topic", req.Topic),
		zap.Int("depth", req.Depth),
	)

	if err := o.monitor.StartExecution(requestID); err != nil {
		return nil, err
	}

	if timeout := o.cfg.Pipeline.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	state := StateInitial
	setState := func(next State) {
		log.Info("state transition", zap.String("from", string(state)), zap.String("to", string(next)))
		state = next
	}

	started := time.Now()
	use := &usage{}

	brief, err := o.runStages(ctx, requestID, req, use, setState)
	if err != nil {
		setState(StateError)
		if _, finishErr := o.monitor.FinishExecution(requestID, err.Error()); finishErr != nil {
			log.Warn("finish execution failed", zap.Error(finishErr))
		}
		return nil, err
	}

	setState(StateDone)
	metrics, finishErr := o.monitor.FinishExecution(requestID, "")
	if finishErr != nil {
		log.Warn("finish execution failed", zap.Error(finishErr))
	}

	o.attachMetadata(brief, metrics, use, time.Since(started))

	if o.store != nil {
		if saveErr := o.store.SaveBrief(ctx, requestID, req.UserID, req.Depth, brief); saveErr != nil {
			log.Warn("save brief failed", zap.Error(saveErr))
		}
		if req.UserID != "" {
			entry := model.ContextEntry{
				Topic:        brief.Topic,
				BriefSummary: brief.ExecutiveSummary,
				KeyFindings:  brief.KeyFindings,
				Timestamp:    time.Now().UTC(),
			}
			if ctxErr := o.store.AppendContext(ctx, req.UserID, entry); ctxErr != nil {
				log.Warn("append context failed", zap.Error(ctxErr))
			}
		}
	}

	log.Info("brief complete",
		zap.Int("sources", len(brief.Sources)),
		zap.Float64("confidence", brief.ConfidenceScore),
	)
	return brief, nil
}

func (o *Orchestrator) runStages(
	ctx context.Context,
	requestID string,
	req model.ResearchRequest,
	use *usage,
	setState func(State),
) (*model.FinalBrief, error) {
	setState(StateSearching)
	results, err := runStage(ctx, o, requestID, StageSearch, func(ctx context.Context) ([]model.SearchResult, int, error) {
		res, searchErr := o.searchSources(ctx, req, use)
		return res, 0, searchErr
	})
	if err != nil {
		return nil, err
	}

	setState(StateFetching)
	contents, err := runStage(ctx, o, requestID, StageFetch, func(ctx context.Context) ([]model.FetchedContent, int, error) {
		return o.fetchSources(ctx, req, results, use)
	})
	if err != nil {
		return nil, err
	}

	setState(StateSummarizing)
	summaries, err := runStage(ctx, o, requestID, StageSummarize, func(ctx context.Context) ([]model.SourceSummary, int, error) {
		return o.summarizeSources(ctx, req, contents, use)
	})
	if err != nil {
		return nil, err
	}

	setState(StateSynthesizing)
	history := o.loadHistory(ctx, req)
	brief, err := runStage(ctx, o, requestID, StageSynthesize, func(ctx context.Context) (*model.FinalBrief, int, error) {
		return o.synthesizeBrief(ctx, requestID, req, summaries, history, use)
	})
	if err != nil {
		return nil, err
	}

	return brief, nil
}

// runStage drives the per-stage attempt loop. Every attempt leaves one node
// metric; transient failures retry up to the budget, anything else is
// terminal immediately.
func runStage[T any](
	ctx context.Context,
	o *Orchestrator,
	requestID, stage string,
	fn func(ctx context.Context) (T, int, error),
) (T, error) {
	var zero T
	maxAttempts := o.retry.MaxAttempts
	log := zap.L().With(zap.String("request_id", requestID), zap.String("stage", stage))

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		val, tokens, err := fn(ctx)
		duration := time.Since(start).Seconds()

		nm := monitoring.NodeMetric{
			Stage:      stage,
			Duration:   duration,
			TokensUsed: tokens,
			Status:     monitoring.NodeSuccess,
		}
		if err != nil {
			nm.Status = monitoring.NodeFailure
			nm.Error = err.Error()
		}
		if mErr := o.monitor.AddNodeMetrics(requestID, nm); mErr != nil {
			log.Warn("record node metric failed", zap.Error(mErr))
		}
		o.tracer.StageEvent(ctx, requestID, stage, map[string]any{
			"attempt":          attempt,
			"status":           string(nm.Status),
			"duration_seconds": duration,
			"tokens_used":      tokens,
		})

		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, &model.PipelineError{Stage: stage, Attempts: attempt, Err: lastErr}
		}
		if !resilience.IsTransient(err) {
			log.Error("stage failed", zap.Int("attempt", attempt), zap.Error(err))
			return zero, &model.PipelineError{Stage: stage, Attempts: attempt, Err: err}
		}
		if attempt == maxAttempts {
			break
		}
		log.Warn("stage attempt failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		if sleepErr := resilience.Sleep(ctx, attempt-1, o.retry); sleepErr != nil {
			return zero, &model.PipelineError{Stage: stage, Attempts: attempt, Err: lastErr}
		}
	}

	log.Error("stage exhausted retries", zap.Int("attempts", maxAttempts), zap.Error(lastErr))
	return zero, &model.PipelineError{Stage: stage, Attempts: maxAttempts, Err: lastErr}
}

// loadHistory returns prior interactions for follow-up requests. Explicit
// context strings from the request take precedence over stored history.
func (o *Orchestrator) loadHistory(ctx context.Context, req model.ResearchRequest) []model.ContextEntry {
	if !req.FollowUp {
		return nil
	}

	var history []model.ContextEntry
	for _, c := range req.Context {
		history = append(history, model.ContextEntry{BriefSummary: c})
	}

	if o.store != nil && req.UserID != "" {
		stored, err := o.store.GetContext(ctx, req.UserID, o.cfg.Pipeline.MaxContextHistory)
		if err != nil {
			zap.L().Warn("load context history failed", zap.Error(err))
		} else {
			history = append(history, stored...)
		}
	}
	return history
}

func (o *Orchestrator) attachMetadata(brief *model.FinalBrief, metrics *monitoring.ExecutionMetrics, use *usage, elapsed time.Duration) {
	estimated := o.costCalc.Gemini(use.llmInput, use.llmOutput)
	if o.cfg.LLM.Provider == "anthropic" {
		estimated = o.costCalc.Anthropic(use.llmInput, use.llmOutput)
	}
	estimated += o.costCalc.SearchQueries(use.searchQueries)
	estimated += o.costCalc.Reader(use.readerTokens)

	meta := map[string]any{
		"execution_time_seconds": elapsed.Seconds(),
		"model_used":             o.llm.Model(),
		"estimated_cost_usd":     estimated,
		"search_queries":         use.searchQueries,
	}
	if metrics != nil {
		meta["total_tokens"] = metrics.TotalTokens()
		meta["token_breakdown"] = metrics.TokenBreakdown()
		meta["node_breakdown"] = metrics.NodeBreakdown()
	}
	if o.tracer.Enabled() {
		meta["trace_url"] = o.tracer.TraceURL(brief.RequestID)
	}
	brief.GenerationMetadata = meta
}

// classifyProviderError maps provider status codes onto the transient split.
// Provider clients report failures through an HTTPStatus method; 429 and 5xx
// are retryable, 4xx is terminal.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	var se interface{ HTTPStatus() int }
	if errors.As(err, &se) && resilience.IsTransientHTTPStatus(se.HTTPStatus()) {
		return resilience.NewTransientError(err, se.HTTPStatus())
	}
	return err
}
