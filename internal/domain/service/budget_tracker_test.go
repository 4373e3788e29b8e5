package service

import "testing"

func TestBudgetTracker_RecordLLMCallAccumulatesCost(t *testing.T) {
	pricing := map[string]ModelPricing{
		"gpt-5": {InputPerMillion: 2, OutputPerMillion: 10, CachedPerMillion: 0.5},
	}
	tracker := NewBudgetTracker(pricing, nil)

	tracker.RecordLLMCall("gpt-5", TokenUsage{Input: 1_000_000, Output: 500_000, Cached: 1_000_000})

	got := tracker.GetCost()
	want := 2.0 + 5.0 + 0.5
	if got != want {
		t.Fatalf("expected cost %v, got %v", want, got)
	}
}

func TestBudgetTracker_UnknownModelContributesZero(t *testing.T) {
	tracker := NewBudgetTracker(nil, nil)
	tracker.RecordLLMCall("unknown-model", TokenUsage{Input: 1_000_000})
	if tracker.GetCost() != 0 {
		t.Fatalf("expected zero cost for unpriced model, got %v", tracker.GetCost())
	}
}

func TestBudgetTracker_IsOverBudget(t *testing.T) {
	budget := 1.0
	pricing := map[string]ModelPricing{"m": {InputPerMillion: 10}}
	tracker := NewBudgetTracker(pricing, &budget)

	if tracker.IsOverBudget() {
		t.Fatalf("should not be over budget before any calls")
	}
	tracker.RecordLLMCall("m", TokenUsage{Input: 1_000_000})
	if !tracker.IsOverBudget() {
		t.Fatalf("expected over budget after a $10 call against a $1 ceiling")
	}
}

func TestBudgetTracker_RemainingBudgetNilWhenUnbounded(t *testing.T) {
	tracker := NewBudgetTracker(nil, nil)
	if tracker.RemainingBudget() != nil {
		t.Fatalf("expected nil remaining budget when unbounded")
	}
}

func TestBudgetTracker_RemainingBudgetReflectsSpend(t *testing.T) {
	budget := 5.0
	pricing := map[string]ModelPricing{"m": {InputPerMillion: 1}}
	tracker := NewBudgetTracker(pricing, &budget)
	tracker.RecordLLMCall("m", TokenUsage{Input: 2_000_000})

	remaining := tracker.RemainingBudget()
	if remaining == nil || *remaining != 3.0 {
		t.Fatalf("expected remaining 3.0, got %+v", remaining)
	}
}
