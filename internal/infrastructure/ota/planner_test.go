package ota

import (
	"testing"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

func newTestPlanner(maxRisk entity.RiskLevel) *ImprovementPlanner {
	return NewImprovementPlanner(maxRisk, zap.NewNop())
}

func TestRiskLevel_OrderingAndStepDown(t *testing.T) {
	if !(entity.RiskLow < entity.RiskMedium && entity.RiskMedium < entity.RiskHigh && entity.RiskHigh < entity.RiskCritical) {
		t.Fatalf("expected strictly increasing risk ordering")
	}
	if entity.RiskLow.StepDown() != entity.RiskLow {
		t.Fatalf("RiskLow should clamp at itself")
	}
	if entity.RiskHigh.StepDown() != entity.RiskMedium {
		t.Fatalf("expected RiskHigh to step down to RiskMedium")
	}
}

func TestCategorizeInsight_MapsKnownCategories(t *testing.T) {
	cases := map[string]entity.ImprovementType{
		"performance":  entity.ImprovementPerformance,
		"retry":        entity.ImprovementReliability,
		"readability":  entity.ImprovementCodeQuality,
		"exception":    entity.ImprovementErrorHandling,
		"coverage":     entity.ImprovementTestCoverage,
		"docs":         entity.ImprovementDocumentation,
		"sanitization": entity.ImprovementSecurity,
		"dedup":        entity.ImprovementRefactoring,
		"nonsense":     entity.ImprovementCodeQuality,
	}
	for category, want := range cases {
		if got := categorizeInsight(category); got != want {
			t.Errorf("categorizeInsight(%q) = %s, want %s", category, got, want)
		}
	}
}

func TestAssessRisk_HighConfidenceStepsDownNonLowBase(t *testing.T) {
	if got := assessRisk(entity.ImprovementDocumentation, 0.95); got != entity.RiskLow {
		t.Errorf("documentation should stay low risk regardless of confidence, got %s", got)
	}
	if got := assessRisk(entity.ImprovementSecurity, 0.85); got != entity.RiskMedium {
		t.Errorf("high-confidence security should step down from high to medium, got %s", got)
	}
	if got := assessRisk(entity.ImprovementSecurity, 0.5); got != entity.RiskHigh {
		t.Errorf("low-confidence security should stay at base risk high, got %s", got)
	}
}

func TestPlanFromInsights_SkipsLowConfidenceAndAboveRiskCeiling(t *testing.T) {
	planner := newTestPlanner(entity.RiskMedium)
	insights := []InsightInput{
		{ID: "i1", Category: "documentation", Description: "add doc comments", Confidence: 0.9},
		{ID: "i2", Category: "performance", Description: "cache lookups", Confidence: 0.2},
		{ID: "i3", Category: "security", Description: "fix validation gap", Confidence: 0.5},
	}

	plan := planner.PlanFromInsights(insights)

	if len(plan.Improvements) != 1 {
		t.Fatalf("expected exactly one surviving improvement, got %d: %+v", len(plan.Improvements), plan.Improvements)
	}
	if plan.Improvements[0].Kind != entity.ImprovementDocumentation {
		t.Fatalf("expected the documentation insight to survive, got %s", plan.Improvements[0].Kind)
	}
}

func TestPlanFromInsights_RespectsAllowedTypes(t *testing.T) {
	planner := newTestPlanner(entity.RiskCritical).WithAllowedTypes([]entity.ImprovementType{entity.ImprovementDocumentation})
	insights := []InsightInput{
		{ID: "i1", Category: "performance", Description: "cache lookups", Confidence: 0.9},
		{ID: "i2", Category: "documentation", Description: "add doc comments", Confidence: 0.9},
	}

	plan := planner.PlanFromInsights(insights)

	if len(plan.Improvements) != 1 || plan.Improvements[0].Kind != entity.ImprovementDocumentation {
		t.Fatalf("expected only the documentation improvement to survive, got %+v", plan.Improvements)
	}
}

func TestApproveImprovement_RejectsDoubleTransition(t *testing.T) {
	planner := newTestPlanner(entity.RiskCritical)
	plan := planner.PlanFromInsights([]InsightInput{
		{ID: "i1", Category: "documentation", Description: "add doc comments", Confidence: 0.9},
	})
	impID := plan.Improvements[0].ID

	if err := planner.ApproveImprovement(plan.ID, impID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := planner.ApproveImprovement(plan.ID, impID); err == nil {
		t.Fatalf("expected error re-approving an already-approved improvement")
	}
	if err := planner.RejectImprovement(plan.ID, impID); err == nil {
		t.Fatalf("expected error rejecting an already-approved improvement")
	}
}

func TestApproveImprovement_UnknownPlanOrImprovement(t *testing.T) {
	planner := newTestPlanner(entity.RiskCritical)
	plan := planner.PlanFromInsights([]InsightInput{
		{ID: "i1", Category: "documentation", Description: "add doc comments", Confidence: 0.9},
	})

	if err := planner.ApproveImprovement("no-such-plan", plan.Improvements[0].ID); err == nil {
		t.Fatalf("expected error for unknown plan")
	}
	if err := planner.ApproveImprovement(plan.ID, "no-such-improvement"); err == nil {
		t.Fatalf("expected error for unknown improvement")
	}
}

func TestFilterByRisk_AndApprovedImprovements(t *testing.T) {
	planner := newTestPlanner(entity.RiskCritical)
	plan := planner.PlanFromInsights([]InsightInput{
		{ID: "i1", Category: "documentation", Description: "low risk", Confidence: 0.9},
		{ID: "i2", Category: "security", Description: "high risk", Confidence: 0.4},
	})

	low := FilterByRisk(plan, entity.RiskLow)
	if len(low) != 1 || low[0].Kind != entity.ImprovementDocumentation {
		t.Fatalf("expected only the low risk improvement, got %+v", low)
	}

	if err := planner.ApproveImprovement(plan.ID, plan.Improvements[0].ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	approved := ApprovedImprovements(plan)
	if len(approved) != 1 || approved[0].ID != plan.Improvements[0].ID {
		t.Fatalf("expected exactly the approved improvement, got %+v", approved)
	}
}

func TestSummary_ReflectsPlanContents(t *testing.T) {
	planner := newTestPlanner(entity.RiskCritical)
	plan := planner.PlanFromInsights([]InsightInput{
		{ID: "i1", Category: "documentation", Description: "add doc comments", Confidence: 0.9},
	})

	summary := Summary(plan)
	if summary == "" {
		t.Fatalf("expected a non-empty summary")
	}
	if got := planner.History(); len(got) != 1 || got[0] != plan {
		t.Fatalf("expected History to track the produced plan")
	}
}
