package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/research-brief/internal/config"
	"github.com/sells-group/research-brief/pkg/anthropic"
	"github.com/sells-group/research-brief/pkg/gemini"
)

// LLM abstracts the text generation provider behind the two operations the
// pipeline needs. Both the Gemini and Anthropic clients satisfy it through
// the adapters below.
type LLM interface {
	Generate(ctx context.Context, prompt string) (*Generation, error)
	Model() string
}

// Generation is one completed LLM call with its token usage.
type Generation struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// NewLLM selects the provider adapter from configuration.
func NewLLM(cfg config.LLMConfig, geminiClient gemini.Client, anthropicClient anthropic.Client) (LLM, error) {
	switch cfg.Provider {
	case "gemini", "":
		if geminiClient == nil {
			return nil, eris.New("pipeline: gemini client not configured")
		}
		return &geminiLLM{client: geminiClient, cfg: cfg}, nil
	case "anthropic":
		if anthropicClient == nil {
			return nil, eris.New("pipeline: anthropic client not configured")
		}
		return &anthropicLLM{client: anthropicClient, cfg: cfg}, nil
	default:
		return nil, eris.Errorf("pipeline: unknown llm provider %q", cfg.Provider)
	}
}

type geminiLLM struct {
	client gemini.Client
	cfg    config.LLMConfig
}

func (g *geminiLLM) Model() string {
	return g.cfg.GeminiModel
}

func (g *geminiLLM) Generate(ctx context.Context, prompt string) (*Generation, error) {
	resp, err := g.client.GenerateContent(ctx, gemini.GenerateRequest{
		Model:       g.cfg.GeminiModel,
		Prompt:      prompt,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return nil, classifyProviderError(err)
	}
	return &Generation{
		Text:         resp.Text,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

type anthropicLLM struct {
	client anthropic.Client
	cfg    config.LLMConfig
}

func (a *anthropicLLM) Model() string {
	return a.cfg.AnthropicModel
}

func (a *anthropicLLM) Generate(ctx context.Context, prompt string) (*Generation, error) {
	temp := a.cfg.Temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.cfg.AnthropicModel,
		MaxTokens:   int64(a.cfg.MaxTokens),
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, classifyProviderError(err)
	}
	return &Generation{
		Text:         resp.Text,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
