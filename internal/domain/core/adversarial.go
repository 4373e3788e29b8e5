package core

import (
	"context"
	"fmt"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// Critic reviews a proposed draft against the original task and either
// accepts it or returns feedback for another generation round.
type Critic interface {
	Review(ctx context.Context, task, draft string) (accept bool, feedback string, err error)
}

// Generator produces a draft response to a task, optionally incorporating
// feedback from a prior Critic round.
type Generator interface {
	Generate(ctx context.Context, agentCtx *AgentContext, task, feedback string) (string, error)
}

// AdversarialCore alternates a Generator and Critic for up to maxRounds
// rounds, stopping as soon as the Critic accepts a draft.
type AdversarialCore struct {
	generator Generator
	critic    Critic
	maxRounds int
}

// NewAdversarialCore builds an AdversarialCore bounded to maxRounds
// generate/critique rounds.
func NewAdversarialCore(generator Generator, critic Critic, maxRounds int) *AdversarialCore {
	if maxRounds <= 0 {
		maxRounds = 3
	}
	return &AdversarialCore{generator: generator, critic: critic, maxRounds: maxRounds}
}

func (c *AdversarialCore) Name() string { return string(entity.CoreAdversarial) }

func (c *AdversarialCore) Description() string {
	return "alternates a generator and critic, regenerating until the critic accepts or rounds are exhausted"
}

func (c *AdversarialCore) Execute(ctx context.Context, agentCtx *AgentContext, task string) (*entity.CoreOutput, error) {
	var feedback, draft string

	for round := 1; round <= c.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		draft, err = c.generator.Generate(ctx, agentCtx, task, feedback)
		if err != nil {
			return nil, fmt.Errorf("adversarial round %d generate: %w", round, err)
		}

		accept, fb, err := c.critic.Review(ctx, task, draft)
		if err != nil {
			return nil, fmt.Errorf("adversarial round %d review: %w", round, err)
		}
		if accept {
			return &entity.CoreOutput{
				Completed: true,
				Summary:   draft,
				Metrics:   entity.CoreMetricsSnapshot{Turns: round},
			}, nil
		}
		feedback = fb
	}

	return &entity.CoreOutput{
		Completed: false,
		Summary:   "adversarial rounds exhausted without critic acceptance",
		Artifacts: []string{draft},
		Metrics:   entity.CoreMetricsSnapshot{Turns: c.maxRounds},
	}, nil
}
