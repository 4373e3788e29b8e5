package core

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// SwarmCore runs N copies of a SubAgentRunner against independent slices of
// the same task concurrently and reports all of their results together.
// Unlike OrchestratorCore's sequential delegation, swarm members run in
// parallel and do not depend on each other's output.
type SwarmCore struct {
	runner    SubAgentRunner
	fanout    func(task string) []string
	maxMember int
}

// NewSwarmCore builds a SwarmCore. fanout splits a task into independent
// member tasks; if nil, maxMember identical copies of the task are run.
func NewSwarmCore(runner SubAgentRunner, maxMember int, fanout func(string) []string) *SwarmCore {
	if maxMember <= 0 {
		maxMember = 3
	}
	if fanout == nil {
		fanout = func(task string) []string {
			members := make([]string, maxMember)
			for i := range members {
				members[i] = task
			}
			return members
		}
	}
	return &SwarmCore{runner: runner, fanout: fanout, maxMember: maxMember}
}

func (c *SwarmCore) Name() string { return string(entity.CoreSwarm) }

func (c *SwarmCore) Description() string {
	return "runs independent subagent members concurrently over slices of the same task"
}

func (c *SwarmCore) Execute(ctx context.Context, agentCtx *AgentContext, task string) (*entity.CoreOutput, error) {
	members := c.fanout(task)

	var mu sync.Mutex
	artifacts := make([]string, 0, len(members))

	g, gctx := errgroup.WithContext(ctx)
	for _, member := range members {
		member := member
		g.Go(func() error {
			if c.runner == nil {
				mu.Lock()
				artifacts = append(artifacts, "skipped (no subagent runner configured): "+member)
				mu.Unlock()
				return nil
			}
			summary, err := c.runner.RunSubtask(gctx, agentCtx, member)
			if err != nil {
				return err
			}
			mu.Lock()
			artifacts = append(artifacts, summary)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return &entity.CoreOutput{
			Completed: false,
			Summary:   "swarm member failed",
			Artifacts: artifacts,
			Metrics:   entity.CoreMetricsSnapshot{Turns: len(members)},
		}, err
	}

	return &entity.CoreOutput{
		Completed: true,
		Summary:   "swarm completed across members",
		Artifacts: artifacts,
		Metrics:   entity.CoreMetricsSnapshot{Turns: len(members)},
	}, nil
}
