package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/repository"
)

// minEvidenceForInsight is the minimum per-(core_type, category) observation
// count before an InsightExtractor will surface an insight about it (§4.E).
const minEvidenceForInsight = 3

// minSuccessRateForCoreSelection is the success_rate floor for a
// CoreSelection insight.
const minSuccessRateForCoreSelection = 0.6

// maxFailureRateForFailurePattern is the success_rate ceiling below which a
// FailurePattern insight is raised.
const maxFailureRateForFailurePattern = 0.3

// minInsightConfidence is the retrieval filter floor applied by Retrieve.
const minInsightConfidence = 0.4

// experienceScanLimit bounds how many recent Experience rows InsightExtractor
// pulls per scan; the aggregate CoreStats view already covers long-run
// trends, so this only needs enough rows to compute the turns-median used by
// Optimization insights.
const experienceScanLimit = 500

// InsightExtractor derives confidence-scored Insight rows from
// ExperienceStore statistics (§4.E). It holds no state of its own; every
// call recomputes from the store.
type InsightExtractor struct {
	experience repository.ExperienceStore
}

// NewInsightExtractor builds an InsightExtractor over the given store.
func NewInsightExtractor(experience repository.ExperienceStore) *InsightExtractor {
	return &InsightExtractor{experience: experience}
}

// Extract derives every insight the current experience stats support,
// unfiltered by confidence and in no particular order. Callers that want
// the retrieval-ready view should call Retrieve instead.
func (e *InsightExtractor) Extract(ctx context.Context) ([]entity.Insight, error) {
	stats, err := e.experience.GetCoreStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("insight extractor: get core stats: %w", err)
	}

	insights := make([]entity.Insight, 0, len(stats))
	for _, st := range stats {
		if st.TotalExecutions < minEvidenceForInsight {
			continue
		}

		if st.SuccessRate >= minSuccessRateForCoreSelection {
			insights = append(insights, coreSelectionInsight(st))
		}
		if st.SuccessRate < maxFailureRateForFailurePattern {
			insights = append(insights, failurePatternInsight(st))
		}
	}

	optimization, err := e.optimizationInsights(ctx)
	if err != nil {
		return nil, err
	}
	insights = append(insights, optimization...)

	return insights, nil
}

// Retrieve returns the insights with confidence >= minInsightConfidence,
// sorted by confidence descending, truncated to max.
func (e *InsightExtractor) Retrieve(ctx context.Context, max int) ([]entity.Insight, error) {
	all, err := e.Extract(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]entity.Insight, 0, len(all))
	for _, ins := range all {
		if ins.Confidence >= minInsightConfidence {
			filtered = append(filtered, ins)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Confidence > filtered[j].Confidence
	})

	if max > 0 && len(filtered) > max {
		filtered = filtered[:max]
	}
	return filtered, nil
}

// coreSelectionConfidence implements the §4.E formula:
// min(1.0, 0.5 + 0.1*log10(N+1)) * success_rate.
func coreSelectionConfidence(n int, successRate float64) float64 {
	conf := 0.5 + 0.1*math.Log10(float64(n)+1)
	if conf > 1.0 {
		conf = 1.0
	}
	return conf * successRate
}

func coreSelectionInsight(st entity.CoreStats) entity.Insight {
	core := st.CoreType
	return entity.Insight{
		ID:            uuid.New().String(),
		Text:          fmt.Sprintf("%s works well for %s (%.0f%% success over %d runs)", st.CoreType, st.Category, st.SuccessRate*100, st.TotalExecutions),
		Category:      entity.InsightCoreSelection,
		Confidence:    coreSelectionConfidence(st.TotalExecutions, st.SuccessRate),
		EvidenceCount: uint32(st.TotalExecutions),
		AppliesTo:     []string{st.Category},
		RelatedCore:   &core,
	}
}

func failurePatternInsight(st entity.CoreStats) entity.Insight {
	core := st.CoreType
	return entity.Insight{
		ID:            uuid.New().String(),
		Text:          fmt.Sprintf("%s struggles with %s (%.0f%% success over %d runs)", st.CoreType, st.Category, st.SuccessRate*100, st.TotalExecutions),
		Category:      entity.InsightFailurePattern,
		Confidence:    1.0 - st.SuccessRate,
		EvidenceCount: uint32(st.TotalExecutions),
		AppliesTo:     []string{st.Category},
		RelatedCore:   &core,
	}
}

// optimizationInsights surfaces a per-category insight when a core type
// completes a given category in fewer than the category's median turn count,
// suggesting a faster strategy is available.
func (e *InsightExtractor) optimizationInsights(ctx context.Context) ([]entity.Insight, error) {
	recent, err := e.experience.Recent(ctx, experienceScanLimit)
	if err != nil {
		return nil, fmt.Errorf("insight extractor: recent experiences: %w", err)
	}

	byCategory := make(map[string][]entity.Experience)
	for _, exp := range recent {
		if !exp.Succeeded {
			continue
		}
		byCategory[exp.Category] = append(byCategory[exp.Category], exp)
	}

	var out []entity.Insight
	for category, exps := range byCategory {
		if len(exps) < minEvidenceForInsight {
			continue
		}
		median := medianTurns(exps)

		byCore := make(map[entity.CoreType][]entity.Experience)
		for _, exp := range exps {
			byCore[exp.CoreType] = append(byCore[exp.CoreType], exp)
		}

		for coreType, coreExps := range byCore {
			if len(coreExps) < minEvidenceForInsight {
				continue
			}
			below := 0
			for _, exp := range coreExps {
				if float64(exp.TurnsUsed) < median {
					below++
				}
			}
			ratio := float64(below) / float64(len(coreExps))
			if ratio < 0.5 {
				continue
			}
			coreType := coreType
			out = append(out, entity.Insight{
				ID:            uuid.New().String(),
				Text:          fmt.Sprintf("%s completes %s tasks in fewer turns than the category median (%.1f)", coreType, category, median),
				Category:      entity.InsightOptimization,
				Confidence:    ratio,
				EvidenceCount: uint32(len(coreExps)),
				AppliesTo:     []string{category},
				RelatedCore:   &coreType,
			})
		}
	}
	return out, nil
}

func medianTurns(exps []entity.Experience) float64 {
	turns := make([]int, len(exps))
	for i, exp := range exps {
		turns[i] = int(exp.TurnsUsed)
	}
	sort.Ints(turns)

	n := len(turns)
	if n%2 == 1 {
		return float64(turns[n/2])
	}
	return float64(turns[n/2-1]+turns[n/2]) / 2.0
}
