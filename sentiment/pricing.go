package sentiment

import "strings"

// ModelPricing holds a model's prices in dollars per 1 million tokens.
type ModelPricing struct {
	InputPrice       float64
	CachedInputPrice float64
	OutputPrice      float64
	TrainingPrice    float64
}

// CostBreakdown is the dollar cost of one request, split by token class.
type CostBreakdown struct {
	InputCost  float64
	CachedCost float64
	OutputCost float64
	TotalCost  float64
}

// Cost prices a request. Cached tokens are billed at the cached-input rate
// and subtracted from the regular input tokens.
func (p ModelPricing) Cost(inputTokens, outputTokens, cachedTokens int) CostBreakdown {
	regularInput := inputTokens - cachedTokens
	if regularInput < 0 {
		regularInput = 0
	}

	b := CostBreakdown{
		InputCost:  float64(regularInput) / 1_000_000 * p.InputPrice,
		CachedCost: float64(cachedTokens) / 1_000_000 * p.CachedInputPrice,
		OutputCost: float64(outputTokens) / 1_000_000 * p.OutputPrice,
	}
	b.TotalCost = b.InputCost + b.CachedCost + b.OutputCost
	return b
}

const defaultPricingModel = "gpt-4.1"

// Prices as of Nov 2024, per 1M tokens.
var modelPricing = map[string]ModelPricing{
	"gpt-4.1": {
		InputPrice:       3.00,
		CachedInputPrice: 0.75,
		OutputPrice:      12.00,
		TrainingPrice:    25.00,
	},
	"gpt-4.1-mini": {
		InputPrice:       0.80,
		CachedInputPrice: 0.20,
		OutputPrice:      3.20,
		TrainingPrice:    5.00,
	},
	"gpt-4o": {
		InputPrice:       2.50,
		CachedInputPrice: 1.25,
		OutputPrice:      10.00,
	},
	"gpt-4o-mini": {
		InputPrice:       0.15,
		CachedInputPrice: 0.075,
		OutputPrice:      0.60,
	},
}

// PricingFor looks up a model's pricing. Unknown model names fall back to
// the gpt-4.1 entry so cost accounting never silently prices at zero.
func PricingFor(model string) ModelPricing {
	if p, ok := modelPricing[strings.ToLower(strings.TrimSpace(model))]; ok {
		return p
	}
	return modelPricing[defaultPricingModel]
}
