package service

import (
	"context"
	"testing"
	"time"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

type fakeExperienceStore struct {
	experiences []entity.Experience
	stats       []entity.CoreStats
}

func (f *fakeExperienceStore) Store(ctx context.Context, exp entity.Experience) error {
	f.experiences = append(f.experiences, exp)
	return nil
}

func (f *fakeExperienceStore) Recent(ctx context.Context, limit int) ([]entity.Experience, error) {
	if limit > 0 && limit < len(f.experiences) {
		return f.experiences[:limit], nil
	}
	return f.experiences, nil
}

func (f *fakeExperienceStore) ByCore(ctx context.Context, coreType entity.CoreType, limit int) ([]entity.Experience, error) {
	var out []entity.Experience
	for _, e := range f.experiences {
		if e.CoreType == coreType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExperienceStore) ByCategory(ctx context.Context, category string, limit int) ([]entity.Experience, error) {
	var out []entity.Experience
	for _, e := range f.experiences {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExperienceStore) GetCoreStats(ctx context.Context) ([]entity.CoreStats, error) {
	return f.stats, nil
}

func (f *fakeExperienceStore) Count(ctx context.Context) (int64, error) {
	return int64(len(f.experiences)), nil
}

func TestInsightExtractor_CoreSelectionInsight(t *testing.T) {
	store := &fakeExperienceStore{
		stats: []entity.CoreStats{
			{CoreType: entity.CoreStructured, Category: "code-test-fix", TotalExecutions: 10, SuccessRate: 0.9},
		},
	}
	extractor := NewInsightExtractor(store)

	insights, err := extractor.Extract(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, ins := range insights {
		if ins.Category == entity.InsightCoreSelection {
			found = true
			if ins.Confidence <= 0 || ins.Confidence > 1.0 {
				t.Fatalf("confidence out of range: %f", ins.Confidence)
			}
		}
	}
	if !found {
		t.Fatal("expected a core_selection insight")
	}
}

func TestInsightExtractor_FailurePatternInsight(t *testing.T) {
	store := &fakeExperienceStore{
		stats: []entity.CoreStats{
			{CoreType: entity.CoreSwarm, Category: "research", TotalExecutions: 5, SuccessRate: 0.1},
		},
	}
	extractor := NewInsightExtractor(store)

	insights, err := extractor.Extract(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, ins := range insights {
		if ins.Category == entity.InsightFailurePattern {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a failure_pattern insight")
	}
}

func TestInsightExtractor_BelowEvidenceThresholdIsSkipped(t *testing.T) {
	store := &fakeExperienceStore{
		stats: []entity.CoreStats{
			{CoreType: entity.CoreStructured, Category: "code-test-fix", TotalExecutions: 2, SuccessRate: 1.0},
		},
	}
	extractor := NewInsightExtractor(store)

	insights, err := extractor.Extract(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(insights) != 0 {
		t.Fatalf("expected no insights below evidence threshold, got %d", len(insights))
	}
}

func TestInsightExtractor_RetrieveFiltersAndSorts(t *testing.T) {
	store := &fakeExperienceStore{
		stats: []entity.CoreStats{
			{CoreType: entity.CoreStructured, Category: "code-test-fix", TotalExecutions: 20, SuccessRate: 0.95},
			{CoreType: entity.CoreAdversarial, Category: "research", TotalExecutions: 4, SuccessRate: 0.61},
		},
	}
	extractor := NewInsightExtractor(store)

	insights, err := extractor.Retrieve(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("expected retrieval truncated to 1, got %d", len(insights))
	}
	if insights[0].Category != entity.InsightCoreSelection {
		t.Fatalf("expected the higher-confidence insight first, got %v", insights[0].Category)
	}
}

func TestInsightExtractor_OptimizationInsight(t *testing.T) {
	now := time.Now()
	store := &fakeExperienceStore{
		experiences: []entity.Experience{
			{Category: "deployment", CoreType: entity.CoreWorkflow, Succeeded: true, TurnsUsed: 2, CreatedAt: now},
			{Category: "deployment", CoreType: entity.CoreWorkflow, Succeeded: true, TurnsUsed: 2, CreatedAt: now},
			{Category: "deployment", CoreType: entity.CoreWorkflow, Succeeded: true, TurnsUsed: 2, CreatedAt: now},
			{Category: "deployment", CoreType: entity.CoreFreeform, Succeeded: true, TurnsUsed: 8, CreatedAt: now},
			{Category: "deployment", CoreType: entity.CoreFreeform, Succeeded: true, TurnsUsed: 9, CreatedAt: now},
			{Category: "deployment", CoreType: entity.CoreFreeform, Succeeded: true, TurnsUsed: 10, CreatedAt: now},
		},
	}
	extractor := NewInsightExtractor(store)

	insights, err := extractor.Extract(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, ins := range insights {
		if ins.Category == entity.InsightOptimization && ins.RelatedCore != nil && *ins.RelatedCore == entity.CoreWorkflow {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an optimization insight favoring the faster core")
	}
}
