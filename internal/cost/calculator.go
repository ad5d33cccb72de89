package cost

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model names to pricing. Default applies to models not listed.
type Rates struct {
	Models  map[string]ModelRate `yaml:"models" mapstructure:"models"`
	Default ModelRate            `yaml:"default" mapstructure:"default"`
}

// DefaultRates prices the summary model at 0.15 in / 0.60 out per MTok.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Default: ModelRate{Input: 0.15, Output: 0.60},
	}
}

// Calculator computes costs for synthesis calls.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Rate returns the pricing for model, falling back to the default rate.
func (c *Calculator) Rate(model string) ModelRate {
	if r, ok := c.rates.Models[model]; ok {
		return r
	}
	return c.rates.Default
}

// Tokens computes the USD cost of a call with the given token counts.
func (c *Calculator) Tokens(model string, input, output int) float64 {
	rate := c.Rate(model)
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}
