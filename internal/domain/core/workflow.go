package core

import (
	"context"
	"fmt"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// WorkflowStep is one named stage of a WorkflowCore's fixed pipeline.
type WorkflowStep struct {
	Name string
	Run  func(ctx context.Context, agentCtx *AgentContext, task string) (string, error)
}

// WorkflowCore executes a fixed, ordered sequence of named steps rather
// than deciding its own plan at runtime, for tasks whose shape is already
// known (release checklists, migration scripts).
type WorkflowCore struct {
	steps []WorkflowStep
}

// NewWorkflowCore builds a WorkflowCore from an ordered step list.
func NewWorkflowCore(steps []WorkflowStep) *WorkflowCore {
	return &WorkflowCore{steps: steps}
}

func (c *WorkflowCore) Name() string { return string(entity.CoreWorkflow) }

func (c *WorkflowCore) Description() string {
	return "executes a fixed, ordered pipeline of named steps"
}

func (c *WorkflowCore) Execute(ctx context.Context, agentCtx *AgentContext, task string) (*entity.CoreOutput, error) {
	artifacts := make([]string, 0, len(c.steps))

	for i, step := range c.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := step.Run(ctx, agentCtx, task)
		if err != nil {
			return &entity.CoreOutput{
				Completed: false,
				Summary:   fmt.Sprintf("workflow failed at step %d (%s)", i+1, step.Name),
				Artifacts: artifacts,
				Metrics:   entity.CoreMetricsSnapshot{Turns: i + 1},
			}, err
		}
		artifacts = append(artifacts, fmt.Sprintf("%s: %s", step.Name, out))
	}

	return &entity.CoreOutput{
		Completed: true,
		Summary:   "workflow completed all steps",
		Artifacts: artifacts,
		Metrics:   entity.CoreMetricsSnapshot{Turns: len(c.steps)},
	}, nil
}
