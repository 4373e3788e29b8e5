package entity

import "time"

// ActionType is the closed enum of work an AutonomousDaemon can schedule.
type ActionType string

const (
	ActionSelfImprove       ActionType = "self_improve"
	ActionExtractInsights   ActionType = "extract_insights"
	ActionMemoryConsolidate ActionType = "memory_consolidate"
	ActionHealthCheck       ActionType = "health_check"
	ActionCustom            ActionType = "custom"
)

// TaskPriority orders pending ScheduledTasks; higher values run first when
// more than one task is due at the same tick.
type TaskPriority int

const (
	PriorityLow TaskPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p TaskPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ScheduledTask is one unit of autonomous work registered via schedule_once.
type ScheduledTask struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority"`
	Action      ActionType   `json:"action"`
	At          time.Time    `json:"at"`
	CreatedAt   time.Time    `json:"created_at"`
}

// BreakerState mirrors llm.CircuitState for the daemon's failsafe_status
// surface, kept as its own string enum so infrastructure/daemon does not
// need to import infrastructure/llm.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerStatus is one named circuit breaker's externally visible state.
type BreakerStatus struct {
	Name                string       `json:"name"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
}
