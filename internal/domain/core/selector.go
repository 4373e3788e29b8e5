package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/repository"
)

// MinStatsForSelection is the minimum ExperienceStore observation count for
// a category before the selector trusts experience stats over Freeform (§4.G).
const MinStatsForSelection = 5

// minObservationsPerCore is the per-core floor within a category before its
// success_rate is considered for selection.
const minObservationsPerCore = 3

// TaskHint is the category derived from a user message by substring
// heuristics before core selection.
type TaskHint struct {
	Category string
	RawTask  string
}

// categoryHeuristics maps message substrings to categories, checked in
// order; first match wins. "fix"/"test"/"build" land in the code-test-fix
// category named explicitly by §4.G's example.
var categoryHeuristics = []struct {
	substrings []string
	category   string
}{
	{[]string{"fix", "bug", "test", "build", "compile", "error"}, "code-test-fix"},
	{[]string{"refactor", "clean up", "rewrite"}, "refactoring"},
	{[]string{"document", "docs", "readme"}, "documentation"},
	{[]string{"research", "investigate", "explore"}, "research"},
	{[]string{"deploy", "release", "ship"}, "deployment"},
}

// DeriveTaskHint builds a TaskHint from a raw user message via substring heuristics.
func DeriveTaskHint(task string) TaskHint {
	lower := strings.ToLower(task)
	for _, h := range categoryHeuristics {
		for _, s := range h.substrings {
			if strings.Contains(lower, s) {
				return TaskHint{Category: h.category, RawTask: task}
			}
		}
	}
	return TaskHint{Category: "general", RawTask: task}
}

// Selection is what CoreSelector.SelectWithHint returns.
type Selection struct {
	CoreType   entity.CoreType `json:"core_type"`
	Confidence float64         `json:"confidence"`
	Rationale  string          `json:"rationale"`
}

// AutoSwitchConfidenceThreshold is the ReplyDriver auto-switch threshold (§4.G).
const AutoSwitchConfidenceThreshold = 0.7

// Selector implements §4.G: select the best core for a task from hints and
// experience statistics.
type Selector struct {
	experience repository.ExperienceStore
}

// NewSelector creates a Selector backed by the given ExperienceStore.
func NewSelector(experience repository.ExperienceStore) *Selector {
	return &Selector{experience: experience}
}

// SelectWithHint implements the §4.G selection rule:
//  1. If ExperienceStore has >= MinStatsForSelection observations for this
//     category, pick the core with the highest success_rate among those
//     with >= minObservationsPerCore observations, confidence = success_rate.
//  2. Otherwise return Freeform with confidence 0.5.
func (s *Selector) SelectWithHint(ctx context.Context, hint TaskHint, registry *Registry) (Selection, error) {
	if s.experience == nil {
		return Selection{CoreType: entity.CoreFreeform, Confidence: 0.5, Rationale: "no experience store configured"}, nil
	}

	stats, err := s.experience.GetCoreStats(ctx)
	if err != nil {
		return Selection{}, err
	}

	var totalForCategory int
	var best *entity.CoreStats
	for i := range stats {
		st := &stats[i]
		if st.Category != hint.Category {
			continue
		}
		totalForCategory += st.TotalExecutions
		if st.TotalExecutions < minObservationsPerCore {
			continue
		}
		if best == nil || st.SuccessRate > best.SuccessRate {
			best = st
		}
	}

	if totalForCategory >= MinStatsForSelection && best != nil {
		return Selection{
			CoreType:   best.CoreType,
			Confidence: best.SuccessRate,
			Rationale: fmt.Sprintf("category %s has %d observations; %s has the highest success rate",
				hint.Category, totalForCategory, best.CoreType),
		}, nil
	}

	return Selection{
		CoreType:   entity.CoreFreeform,
		Confidence: 0.5,
		Rationale:  "insufficient experience for category " + hint.Category + "; defaulting to freeform",
	}, nil
}

// ShouldAutoSwitch implements the ReplyDriver auto-switch policy: confidence
// must exceed the threshold and the selection must differ from current.
// Auto-switching is never performed while a core's execute() is running —
// that is enforced by the caller serializing turns, not by this check.
func ShouldAutoSwitch(sel Selection, current entity.CoreType) bool {
	return sel.Confidence > AutoSwitchConfidenceThreshold && sel.CoreType != current
}
