package service

import "sync"

// TokenUsage is one LLM call's token accounting, split by pricing tier.
type TokenUsage struct {
	Input  int64
	Output int64
	Cached int64
}

// ModelPricing is the per-million-token price for one model, in dollars.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
	CachedPerMillion float64
}

// BudgetTracker implements §4.R: running cost accounting against a
// per-model pricing table and an optional hard budget ceiling.
type BudgetTracker struct {
	mu      sync.Mutex
	pricing map[string]ModelPricing
	cost    float64
	budget  *float64 // nil means unbounded
}

// NewBudgetTracker builds a BudgetTracker over a pricing table. budget is
// the optional dollar ceiling; pass nil for no ceiling.
func NewBudgetTracker(pricing map[string]ModelPricing, budget *float64) *BudgetTracker {
	if pricing == nil {
		pricing = make(map[string]ModelPricing)
	}
	return &BudgetTracker{pricing: pricing, budget: budget}
}

// RecordLLMCall updates the running cost for one call against model.
// Unknown models contribute zero cost (logged by the caller, not here) so
// tracking never blocks on an incomplete pricing table.
func (b *BudgetTracker) RecordLLMCall(model string, usage TokenUsage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pricing, ok := b.pricing[model]
	if !ok {
		return
	}
	b.cost += float64(usage.Input) / 1_000_000 * pricing.InputPerMillion
	b.cost += float64(usage.Output) / 1_000_000 * pricing.OutputPerMillion
	b.cost += float64(usage.Cached) / 1_000_000 * pricing.CachedPerMillion
}

// GetCost returns the total accumulated dollar cost so far.
func (b *BudgetTracker) GetCost() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cost
}

// RemainingBudget returns the dollars left before IsOverBudget trips, or
// nil if no budget ceiling is configured.
func (b *BudgetTracker) RemainingBudget() *float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.budget == nil {
		return nil
	}
	remaining := *b.budget - b.cost
	return &remaining
}

// IsOverBudget reports whether accumulated cost has exceeded the ceiling.
// Always false when no ceiling is configured.
func (b *BudgetTracker) IsOverBudget() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.budget == nil {
		return false
	}
	return b.cost > *b.budget
}
