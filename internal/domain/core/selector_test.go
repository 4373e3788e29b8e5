package core

import (
	"context"
	"testing"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

type stubExperienceStore struct {
	stats []entity.CoreStats
}

func (s *stubExperienceStore) Store(ctx context.Context, exp entity.Experience) error { return nil }

func (s *stubExperienceStore) Recent(ctx context.Context, limit int) ([]entity.Experience, error) {
	return nil, nil
}

func (s *stubExperienceStore) ByCore(ctx context.Context, coreType entity.CoreType, limit int) ([]entity.Experience, error) {
	return nil, nil
}

func (s *stubExperienceStore) ByCategory(ctx context.Context, category string, limit int) ([]entity.Experience, error) {
	return nil, nil
}

func (s *stubExperienceStore) GetCoreStats(ctx context.Context) ([]entity.CoreStats, error) {
	return s.stats, nil
}

func (s *stubExperienceStore) Count(ctx context.Context) (int64, error) { return 0, nil }

func TestDeriveTaskHint(t *testing.T) {
	hint := DeriveTaskHint("please fix the failing build")
	if hint.Category != "code-test-fix" {
		t.Fatalf("expected code-test-fix category, got %s", hint.Category)
	}

	hint = DeriveTaskHint("write a poem about the sea")
	if hint.Category != "general" {
		t.Fatalf("expected general category fallback, got %s", hint.Category)
	}
}

func TestSelector_DefaultsToFreeformBelowMinStats(t *testing.T) {
	store := &stubExperienceStore{
		stats: []entity.CoreStats{
			{CoreType: entity.CoreStructured, Category: "code-test-fix", TotalExecutions: 2, SuccessRate: 0.9},
		},
	}
	sel := NewSelector(store)

	selection, err := sel.SelectWithHint(context.Background(), TaskHint{Category: "code-test-fix"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selection.CoreType != entity.CoreFreeform {
		t.Fatalf("expected freeform fallback, got %s", selection.CoreType)
	}
	if selection.Confidence != 0.5 {
		t.Fatalf("expected confidence 0.5, got %f", selection.Confidence)
	}
}

func TestSelector_PicksHighestSuccessRateAboveMinStats(t *testing.T) {
	store := &stubExperienceStore{
		stats: []entity.CoreStats{
			{CoreType: entity.CoreStructured, Category: "code-test-fix", TotalExecutions: 4, SuccessRate: 0.9},
			{CoreType: entity.CoreFreeform, Category: "code-test-fix", TotalExecutions: 3, SuccessRate: 0.4},
		},
	}
	sel := NewSelector(store)

	selection, err := sel.SelectWithHint(context.Background(), TaskHint{Category: "code-test-fix"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selection.CoreType != entity.CoreStructured {
		t.Fatalf("expected structured to win on success rate, got %s", selection.CoreType)
	}
	if selection.Confidence != 0.9 {
		t.Fatalf("expected confidence to equal success rate, got %f", selection.Confidence)
	}
}

func TestShouldAutoSwitch(t *testing.T) {
	high := Selection{CoreType: entity.CoreStructured, Confidence: 0.8}
	low := Selection{CoreType: entity.CoreStructured, Confidence: 0.6}

	if !ShouldAutoSwitch(high, entity.CoreFreeform) {
		t.Fatal("expected auto-switch above threshold to a different core")
	}
	if ShouldAutoSwitch(low, entity.CoreFreeform) {
		t.Fatal("expected no auto-switch below threshold")
	}
	if ShouldAutoSwitch(high, entity.CoreStructured) {
		t.Fatal("expected no auto-switch when selection matches current core")
	}
}
