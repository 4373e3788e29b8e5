package entity

import "time"

// Experience is one immutable record of a completed task attempt, stored by
// the ExperienceStore once and never mutated.
type Experience struct {
	Task        string    `json:"task"`
	CoreType    CoreType  `json:"core_type"`
	Succeeded   bool      `json:"succeeded"`
	TurnsUsed   uint32    `json:"turns_used"`
	CostDollars float64   `json:"cost_dollars"`
	TimeMs      uint64    `json:"time_ms"`
	Category    string    `json:"category"`
	Insights    []string  `json:"insights,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CoreStats is the aggregate view per (core_type, category) derived from the
// ExperienceStore's append log.
type CoreStats struct {
	CoreType        CoreType `json:"core_type"`
	Category        string   `json:"category"`
	TotalExecutions int      `json:"total_executions"`
	SuccessRate     float64  `json:"success_rate"`
	AvgTurns        float64  `json:"avg_turns"`
	AvgCost         float64  `json:"avg_cost"`
	AvgTimeMs       float64  `json:"avg_time_ms"`
}
