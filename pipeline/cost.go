package pipeline

import "sync"

// ModelPricing is a model's per-token USD cost, quoted per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultModelPricing prices the models the vlm/classifier/sentiment
// processors are likely to be configured against (as of 2025-01-01).
// Unlisted models price at zero rather than failing the call.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4-turbo":                {InputPer1M: 10.00, OutputPer1M: 30.00},
	"gpt-3.5-turbo":              {InputPer1M: 0.50, OutputPer1M: 1.50},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-3-sonnet-20240229":   {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	"gemini-2.5-flash":           {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash":           {InputPer1M: 0.075, OutputPer1M: 0.30},
}

// CostTracker accumulates the USD cost of LLM calls made by the vlm,
// classifier, and sentiment processors over the lifetime of a job, so a
// caller can read back a per-job total alongside the aggregated result.
type CostTracker struct {
	mu       sync.RWMutex
	pricing  map[string]ModelPricing
	totalUSD float64
	byModel  map[string]float64
}

// NewCostTracker builds a CostTracker seeded with defaultModelPricing.
func NewCostTracker() *CostTracker {
	return &CostTracker{
		pricing: defaultModelPricing,
		byModel: make(map[string]float64),
	}
}

// Record prices one LLM call and returns its cost in USD, so the caller
// can stamp it directly into a Result's Metadata.Extra.
func (ct *CostTracker) Record(modelName string, inputTokens, outputTokens int) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	pricing := ct.pricing[modelName] // zero value if unknown: priced at $0
	cost := (float64(inputTokens)/1_000_000.0)*pricing.InputPer1M + (float64(outputTokens)/1_000_000.0)*pricing.OutputPer1M

	ct.totalUSD += cost
	ct.byModel[modelName] += cost
	return cost
}

// TotalUSD returns the cumulative cost recorded so far.
func (ct *CostTracker) TotalUSD() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.totalUSD
}

// ByModel returns a copy of the per-model cost breakdown.
func (ct *CostTracker) ByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	out := make(map[string]float64, len(ct.byModel))
	for k, v := range ct.byModel {
		out[k] = v
	}
	return out
}

// SetPricing overrides or adds pricing for a model, for enterprise rates
// or models absent from defaultModelPricing.
func (ct *CostTracker) SetPricing(modelName string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.pricing == nil {
		ct.pricing = make(map[string]ModelPricing)
	}
	ct.pricing[modelName] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}
