// Package ota implements the §4.O self-improvement pipeline: planning
// candidate code changes from learned insights, applying them with
// backup/rollback, running the project's test suites, and deciding
// whether to promote or roll back a build.
package ota

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// InsightInput is the shape ImprovementPlanner consumes from the
// InsightExtractor/ExperienceStore learning pipeline.
type InsightInput struct {
	ID          string
	Category    string
	Description string
	Confidence  float64
}

// ImprovementPlanner maps insights into a risk-assessed ImprovementPlan and
// tracks plan/approval history.
type ImprovementPlanner struct {
	logger       *zap.Logger
	maxRisk      entity.RiskLevel
	allowedTypes map[entity.ImprovementType]bool
	plans        []*entity.ImprovementPlan
}

// NewImprovementPlanner creates a planner capped at maxRisk with every
// ImprovementType allowed.
func NewImprovementPlanner(maxRisk entity.RiskLevel, logger *zap.Logger) *ImprovementPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[entity.ImprovementType]bool)
	for _, t := range allImprovementTypes {
		allowed[t] = true
	}
	return &ImprovementPlanner{logger: logger, maxRisk: maxRisk, allowedTypes: allowed}
}

var allImprovementTypes = []entity.ImprovementType{
	entity.ImprovementPerformance,
	entity.ImprovementReliability,
	entity.ImprovementCodeQuality,
	entity.ImprovementErrorHandling,
	entity.ImprovementTestCoverage,
	entity.ImprovementDocumentation,
	entity.ImprovementSecurity,
	entity.ImprovementRefactoring,
}

// WithAllowedTypes restricts the planner to only the given improvement
// types, replacing the all-types default.
func (p *ImprovementPlanner) WithAllowedTypes(types []entity.ImprovementType) *ImprovementPlanner {
	allowed := make(map[entity.ImprovementType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	p.allowedTypes = allowed
	return p
}

// PlanFromInsights maps each insight to an ImprovementType, assesses its
// risk, and drops anything below the confidence floor, outside the allowed
// type set, or above the planner's risk ceiling.
func (p *ImprovementPlanner) PlanFromInsights(insights []InsightInput) *entity.ImprovementPlan {
	plan := &entity.ImprovementPlan{
		ID:        fmt.Sprintf("plan-%d", time.Now().UnixNano()),
		MaxRisk:   p.maxRisk,
		CreatedAt: time.Now(),
	}

	for _, insight := range insights {
		if insight.Confidence < 0.3 {
			p.logger.Debug("skipping low-confidence insight", zap.String("insight_id", insight.ID), zap.Float64("confidence", insight.Confidence))
			continue
		}

		kind := categorizeInsight(insight.Category)
		if !p.allowedTypes[kind] {
			p.logger.Debug("skipping disallowed improvement type", zap.String("insight_id", insight.ID), zap.String("kind", string(kind)))
			continue
		}

		risk := assessRisk(kind, insight.Confidence)
		if risk > p.maxRisk {
			p.logger.Warn("skipping improvement exceeding risk threshold", zap.String("insight_id", insight.ID), zap.String("risk", risk.String()), zap.String("max_risk", p.maxRisk.String()))
			continue
		}

		sourceInsight := insight.ID
		titleID := insight.ID
		if len(titleID) > 8 {
			titleID = titleID[:8]
		}
		plan.Improvements = append(plan.Improvements, entity.Improvement{
			ID:            fmt.Sprintf("imp-%d-%d", time.Now().UnixNano(), len(plan.Improvements)),
			Kind:          kind,
			Title:         fmt.Sprintf("Auto-improvement from insight %s", titleID),
			Description:   insight.Description,
			Risk:          risk,
			TargetFile:    "src/",
			Confidence:    insight.Confidence,
			Status:        entity.ImprovementProposed,
			SourceInsight: &sourceInsight,
		})
	}

	plan.EstimatedDurationSecs = len(plan.Improvements) * 30

	p.logger.Info("created improvement plan", zap.String("plan_id", plan.ID), zap.Int("num_improvements", len(plan.Improvements)), zap.Int("num_insights", len(insights)))
	p.plans = append(p.plans, plan)
	return plan
}

// ApproveImprovement transitions a Proposed improvement to Approved.
func (p *ImprovementPlanner) ApproveImprovement(planID, improvementID string) error {
	return p.transition(planID, improvementID, entity.ImprovementApproved)
}

// RejectImprovement transitions a Proposed improvement to Rejected.
func (p *ImprovementPlanner) RejectImprovement(planID, improvementID string) error {
	return p.transition(planID, improvementID, entity.ImprovementRejected)
}

func (p *ImprovementPlanner) transition(planID, improvementID string, to entity.ImprovementStatus) error {
	plan := p.findPlan(planID)
	if plan == nil {
		return fmt.Errorf("ota: plan not found: %s", planID)
	}
	for i := range plan.Improvements {
		imp := &plan.Improvements[i]
		if imp.ID != improvementID {
			continue
		}
		if imp.Status != entity.ImprovementProposed {
			return fmt.Errorf("ota: cannot transition improvement %s out of %s status", improvementID, imp.Status)
		}
		imp.Status = to
		p.logger.Info("transitioned improvement", zap.String("improvement_id", improvementID), zap.String("plan_id", planID), zap.String("status", string(to)))
		return nil
	}
	return fmt.Errorf("ota: improvement not found: %s", improvementID)
}

func (p *ImprovementPlanner) findPlan(planID string) *entity.ImprovementPlan {
	for _, plan := range p.plans {
		if plan.ID == planID {
			return plan
		}
	}
	return nil
}

// History returns every plan this planner has produced.
func (p *ImprovementPlanner) History() []*entity.ImprovementPlan {
	return p.plans
}

// FilterByRisk returns the improvements in plan at or below maxRisk.
func FilterByRisk(plan *entity.ImprovementPlan, maxRisk entity.RiskLevel) []entity.Improvement {
	var out []entity.Improvement
	for _, imp := range plan.Improvements {
		if imp.Risk <= maxRisk {
			out = append(out, imp)
		}
	}
	return out
}

// ApprovedImprovements returns only the Approved improvements in plan.
func ApprovedImprovements(plan *entity.ImprovementPlan) []entity.Improvement {
	var out []entity.Improvement
	for _, imp := range plan.Improvements {
		if imp.Status == entity.ImprovementApproved {
			out = append(out, imp)
		}
	}
	return out
}

// Summary renders a human-readable one-line description of plan.
func Summary(plan *entity.ImprovementPlan) string {
	var proposed, approved, rejected int
	typeCounts := make(map[entity.ImprovementType]int)
	for _, imp := range plan.Improvements {
		switch imp.Status {
		case entity.ImprovementProposed:
			proposed++
		case entity.ImprovementApproved:
			approved++
		case entity.ImprovementRejected:
			rejected++
		}
		typeCounts[imp.Kind]++
	}

	var types []string
	for kind, count := range typeCounts {
		types = append(types, fmt.Sprintf("%s=%d", kind, count))
	}

	id := plan.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("Plan %s | %d improvements (%d proposed, %d approved, %d rejected) | types: [%s] | est: %ds",
		id, len(plan.Improvements), proposed, approved, rejected, strings.Join(types, ", "), plan.EstimatedDurationSecs)
}

// categorizeInsight maps a free-text insight category to an ImprovementType,
// falling back to CodeQuality for anything unrecognized.
func categorizeInsight(category string) entity.ImprovementType {
	switch strings.ToLower(category) {
	case "performance", "latency", "speed", "optimization":
		return entity.ImprovementPerformance
	case "reliability", "stability", "retry", "recovery":
		return entity.ImprovementReliability
	case "quality", "code_quality", "readability", "naming":
		return entity.ImprovementCodeQuality
	case "error", "error_handling", "failure_pattern", "exception":
		return entity.ImprovementErrorHandling
	case "test", "test_coverage", "testing", "coverage":
		return entity.ImprovementTestCoverage
	case "doc", "documentation", "docs", "comment":
		return entity.ImprovementDocumentation
	case "security", "auth", "validation", "sanitization":
		return entity.ImprovementSecurity
	case "refactor", "refactoring", "dedup", "extraction":
		return entity.ImprovementRefactoring
	default:
		return entity.ImprovementCodeQuality
	}
}

// assessRisk derives an improvement's risk from its type's base risk,
// stepped down by one when the insight's confidence exceeds 0.8.
func assessRisk(kind entity.ImprovementType, confidence float64) entity.RiskLevel {
	base := kind.BaseRisk()
	if confidence > 0.8 && base > entity.RiskLow {
		return base.StepDown()
	}
	return base
}
