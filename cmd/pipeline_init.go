package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/monitoring"
	"github.com/sells-group/research-brief/internal/pipeline"
	"github.com/sells-group/research-brief/internal/store"
	anthropicpkg "github.com/sells-group/research-brief/pkg/anthropic"
	"github.com/sells-group/research-brief/pkg/gemini"
	"github.com/sells-group/research-brief/pkg/langsmith"
	"github.com/sells-group/research-brief/pkg/reader"
	"github.com/sells-group/research-brief/pkg/tavily"
)

// pipelineEnv holds the initialized store, clients, metrics registry, and
// orchestrator shared by the serve and brief commands.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	Monitor      *monitoring.Service
	Tracer       langsmith.Tracer
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured persistence backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, provider clients, metrics registry, and
// orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	searchClient := tavily.NewClient(cfg.Search.Key, tavily.WithBaseURL(cfg.Search.BaseURL))
	readerClient := reader.NewClient(cfg.Reader.Key, reader.WithBaseURL(cfg.Reader.BaseURL))

	geminiOpts := []gemini.Option{gemini.WithModel(cfg.LLM.GeminiModel)}
	if cfg.LLM.GeminiBaseURL != "" {
		geminiOpts = append(geminiOpts, gemini.WithBaseURL(cfg.LLM.GeminiBaseURL))
	}
	geminiClient := gemini.NewClient(cfg.LLM.GeminiKey, geminiOpts...)
	anthropicClient := anthropicpkg.NewClient(cfg.LLM.AnthropicKey)

	llm, err := pipeline.NewLLM(cfg.LLM, geminiClient, anthropicClient)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	tracer := langsmith.Noop()
	if cfg.Tracing.Enabled && cfg.Tracing.Key != "" {
		tracer = langsmith.NewClient(cfg.Tracing.Key, cfg.Tracing.Project,
			langsmith.WithEndpoint(cfg.Tracing.Endpoint))
		zap.L().Info("langsmith tracing enabled", zap.String("project", cfg.Tracing.Project))
	}

	monitor := monitoring.NewService(monitoring.RetentionConfig{
		MaxRetained: cfg.Monitoring.RetainedExecutions,
		TTL:         cfg.Monitoring.RetentionTTL(),
	})

	orch := pipeline.New(cfg, st, monitor, searchClient, readerClient, llm, tracer)

	return &pipelineEnv{
		Store:        st,
		Orchestrator: orch,
		Monitor:      monitor,
		Tracer:       tracer,
	}, nil
}
