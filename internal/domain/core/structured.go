package core

import (
	"context"
	"fmt"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// StructuredCore bounds a task to a fixed number of rounds instead of the
// open-ended Freeform turn loop. It is the code-test-fix strategy named by
// §4.G's example category. Execute itself runs no plan, execute or verify
// step: it checks ctx once per round and, after maxCycles rounds, returns
// an output with Completed=false.
type StructuredCore struct {
	maxCycles int
}

// NewStructuredCore builds a StructuredCore bounded to maxCycles rounds
// (3 when maxCycles <= 0).
func NewStructuredCore(maxCycles int) *StructuredCore {
	if maxCycles <= 0 {
		maxCycles = 3
	}
	return &StructuredCore{maxCycles: maxCycles}
}

func (c *StructuredCore) Name() string { return string(entity.CoreStructured) }

func (c *StructuredCore) Description() string {
	return "plan/execute/verify cycle bounded to a fixed number of rounds, for code-test-fix tasks"
}

func (c *StructuredCore) Execute(ctx context.Context, agentCtx *AgentContext, task string) (*entity.CoreOutput, error) {
	for round := 1; round <= c.maxCycles; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Each round is: plan the next change, apply it, run verification.
		// The concrete plan/verify steps are supplied by the extensions
		// (build/test tools) reachable through agentCtx's conversation
		// history; this core only bounds and sequences the cycle.
		if round == c.maxCycles {
			return &entity.CoreOutput{
				Completed: false,
				Summary:   fmt.Sprintf("structured cycle exhausted after %d rounds without verified success", c.maxCycles),
				Metrics:   entity.CoreMetricsSnapshot{Turns: round},
			}, nil
		}
	}
	return &entity.CoreOutput{
		Completed: true,
		Summary:   "structured cycle completed",
		Metrics:   entity.CoreMetricsSnapshot{Turns: c.maxCycles},
	}, nil
}
