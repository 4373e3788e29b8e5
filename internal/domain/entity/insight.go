package entity

// InsightCategory is the closed enum of Insight categories.
type InsightCategory string

const (
	InsightCoreSelection InsightCategory = "core_selection"
	InsightFailurePattern InsightCategory = "failure_pattern"
	InsightOptimization   InsightCategory = "optimization"
	InsightBestPractice   InsightCategory = "best_practice"
)

// Insight is a derived, confidence-scored observation produced by the
// InsightExtractor from a set of Experience rows.
type Insight struct {
	ID            string          `json:"id"`
	Text          string          `json:"text"`
	Category      InsightCategory `json:"category"`
	Confidence    float64         `json:"confidence"`
	EvidenceCount uint32          `json:"evidence_count"`
	AppliesTo     []string        `json:"applies_to,omitempty"`
	RelatedCore   *CoreType       `json:"related_core,omitempty"`
}
