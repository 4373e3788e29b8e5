package entity

import (
	"fmt"
	"strings"
	"time"
)

// AgentCheckpointState is the MemGPT-style paged-continuation snapshot: a
// compact description of "what the agent was doing" synthesized when the
// conversation must be replaced wholesale after a repeated context-limit
// overflow (§4.L, §9 "MemGPT continuation").
type AgentCheckpointState struct {
	TaskDescription     string    `json:"task_description"`
	ConversationSummary string    `json:"conversation_summary"`
	CompletedSteps      []string  `json:"completed_steps"`
	PendingGoals        []string  `json:"pending_goals"`
	LastToolResults     []string  `json:"last_tool_results"`
	TurnsTaken          int       `json:"turns_taken"`
	Timestamp           time.Time `json:"timestamp"`
}

// ToContinuationPrompt renders the state into the single synthetic user
// message the driver replaces the conversation with, per §4.L.
func (s *AgentCheckpointState) ToContinuationPrompt() string {
	var b strings.Builder
	b.WriteString("You are continuing a task after a context reset. Here is what happened so far:\n\n")
	fmt.Fprintf(&b, "Task: %s\n\n", s.TaskDescription)
	if s.ConversationSummary != "" {
		fmt.Fprintf(&b, "Summary so far:\n%s\n\n", s.ConversationSummary)
	}
	if len(s.CompletedSteps) > 0 {
		b.WriteString("Completed steps:\n")
		for _, step := range s.CompletedSteps {
			fmt.Fprintf(&b, "- %s\n", step)
		}
		b.WriteString("\n")
	}
	if len(s.PendingGoals) > 0 {
		b.WriteString("Remaining goals:\n")
		for _, goal := range s.PendingGoals {
			fmt.Fprintf(&b, "- %s\n", goal)
		}
		b.WriteString("\n")
	}
	if len(s.LastToolResults) > 0 {
		b.WriteString("Most recent tool results:\n")
		for _, r := range s.LastToolResults {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Turns taken so far: %d. Continue working toward the remaining goals.\n", s.TurnsTaken)
	return b.String()
}
