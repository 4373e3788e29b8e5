package core

import (
	"context"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// SubAgentRunner executes one delegated subtask and reports back a summary.
// OrchestratorCore depends on this seam rather than a concrete subagent
// type so the wiring layer can supply whatever session/provider pairing it
// uses to spawn subagents.
type SubAgentRunner interface {
	RunSubtask(ctx context.Context, parent *AgentContext, subtask string) (string, error)
}

// OrchestratorCore decomposes a task into subtasks and runs each through a
// SubAgentRunner sequentially, aggregating their summaries into one output.
type OrchestratorCore struct {
	runner    SubAgentRunner
	decompose func(task string) []string
}

// NewOrchestratorCore builds an OrchestratorCore. decompose splits a task
// into ordered subtasks; if nil, the whole task is run as a single subtask.
func NewOrchestratorCore(runner SubAgentRunner, decompose func(string) []string) *OrchestratorCore {
	if decompose == nil {
		decompose = func(task string) []string { return []string{task} }
	}
	return &OrchestratorCore{runner: runner, decompose: decompose}
}

func (c *OrchestratorCore) Name() string { return string(entity.CoreOrchestrator) }

func (c *OrchestratorCore) Description() string {
	return "decomposes a task into subtasks and runs them sequentially through delegated subagents"
}

func (c *OrchestratorCore) Execute(ctx context.Context, agentCtx *AgentContext, task string) (*entity.CoreOutput, error) {
	subtasks := c.decompose(task)
	artifacts := make([]string, 0, len(subtasks))
	turns := 0

	for _, st := range subtasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		turns++
		if c.runner == nil {
			artifacts = append(artifacts, "skipped (no subagent runner configured): "+st)
			continue
		}
		summary, err := c.runner.RunSubtask(ctx, agentCtx, st)
		if err != nil {
			return &entity.CoreOutput{
				Completed: false,
				Summary:   "orchestration failed on subtask: " + st,
				Artifacts: artifacts,
				Metrics:   entity.CoreMetricsSnapshot{Turns: turns},
			}, err
		}
		artifacts = append(artifacts, summary)
	}

	return &entity.CoreOutput{
		Completed: true,
		Summary:   "orchestrated task across subtasks",
		Artifacts: artifacts,
		Metrics:   entity.CoreMetricsSnapshot{Turns: turns},
	}, nil
}
