package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/research-brief/internal/config"
)

func TestGemini(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Rates{Gemini: ModelRate{Input: 0.075, Output: 0.30}})

	got := calc.Gemini(1_000_000, 1_000_000)
	assert.InDelta(t, 0.375, got, 1e-9)

	assert.Zero(t, calc.Gemini(0, 0))
}

func TestAnthropic(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Rates{Anthropic: ModelRate{Input: 3.00, Output: 15.00}})

	got := calc.Anthropic(500_000, 100_000)
	assert.InDelta(t, 1.5+1.5, got, 1e-9)
}

func TestSearchQueries(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Rates{Search: SearchRate{PerQuery: 0.005}})
	assert.InDelta(t, 0.015, calc.SearchQueries(3), 1e-9)
	assert.Zero(t, calc.SearchQueries(0))
}

func TestReader(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Rates{Reader: ReaderRate{PerMTok: 0.02}})
	assert.InDelta(t, 0.01, calc.Reader(500_000), 1e-9)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	// Unset providers keep their defaults.
	rates := FromConfig(config.PricingConfig{
		Gemini: config.ModelPricing{Input: 0.5, Output: 1.5},
	})
	assert.Equal(t, ModelRate{Input: 0.5, Output: 1.5}, rates.Gemini)
	assert.Equal(t, DefaultRates().Anthropic, rates.Anthropic)
	assert.Equal(t, DefaultRates().Search, rates.Search)

	rates = FromConfig(config.PricingConfig{})
	assert.Equal(t, DefaultRates(), rates)
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()

	rates := DefaultRates()
	assert.Positive(t, rates.Gemini.Input)
	assert.Positive(t, rates.Anthropic.Output)
	assert.Positive(t, rates.Search.PerQuery)
	assert.Positive(t, rates.Reader.PerMTok)
}
