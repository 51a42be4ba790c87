package cost

import "github.com/sells-group/research-brief/internal/config"

// Rates holds per-provider pricing configuration.
type Rates struct {
	Gemini    ModelRate  `yaml:"gemini" mapstructure:"gemini"`
	Anthropic ModelRate  `yaml:"anthropic" mapstructure:"anthropic"`
	Search    SearchRate `yaml:"search" mapstructure:"search"`
	Reader    ReaderRate `yaml:"reader" mapstructure:"reader"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// SearchRate holds flat per-query search pricing.
type SearchRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// ReaderRate holds reader token pricing (per million tokens).
type ReaderRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Gemini computes the cost for a Gemini generation call.
func (c *Calculator) Gemini(input, output int) float64 {
	return tokenCost(c.rates.Gemini, input, output)
}

// Anthropic computes the cost for an Anthropic message call.
func (c *Calculator) Anthropic(input, output int) float64 {
	return tokenCost(c.rates.Anthropic, input, output)
}

// SearchQueries returns the flat cost for n search queries.
func (c *Calculator) SearchQueries(n int) float64 {
	return float64(n) * c.rates.Search.PerQuery
}

// Reader computes the cost for reader token usage.
func (c *Calculator) Reader(tokens int) float64 {
	return (float64(tokens) / 1e6) * c.rates.Reader.PerMTok
}

func tokenCost(rate ModelRate, input, output int) float64 {
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Gemini:    ModelRate{Input: 0.075, Output: 0.30},
		Anthropic: ModelRate{Input: 3.00, Output: 15.00},
		Search:    SearchRate{PerQuery: 0.005},
		Reader:    ReaderRate{PerMTok: 0.02},
	}
}

// FromConfig maps configured pricing onto Rates, keeping defaults for any
// provider left unset.
func FromConfig(p config.PricingConfig) Rates {
	rates := DefaultRates()
	if p.Gemini.Input > 0 || p.Gemini.Output > 0 {
		rates.Gemini = ModelRate{Input: p.Gemini.Input, Output: p.Gemini.Output}
	}
	if p.Anthropic.Input > 0 || p.Anthropic.Output > 0 {
		rates.Anthropic = ModelRate{Input: p.Anthropic.Input, Output: p.Anthropic.Output}
	}
	if p.Search.PerQuery > 0 {
		rates.Search = SearchRate{PerQuery: p.Search.PerQuery}
	}
	if p.Reader.PerMTok > 0 {
		rates.Reader = ReaderRate{PerMTok: p.Reader.PerMTok}
	}
	return rates
}
