package service

import (
	"context"
	"fmt"

	"github.com/ngoclaw/goosecore/internal/domain/core"
)

// loopRunner lets the non-Freeform cores (Orchestrator, Swarm, Adversarial)
// delegate a subtask to the same AgentLoop Freeform runs on, rather than
// needing a second ReAct implementation. Every subtask runs with an empty
// history — each delegated subtask is independent by design (§4.F).
type loopRunner struct {
	loop         *AgentLoop
	systemPrompt func(agentCtx *core.AgentContext) string
}

// NewLoopSubAgentRunner builds a loopRunner. systemPrompt may be nil, in which case
// subtasks run with no system prompt beyond what the subtask text itself
// carries.
func NewLoopSubAgentRunner(loop *AgentLoop, systemPrompt func(agentCtx *core.AgentContext) string) *loopRunner {
	return &loopRunner{loop: loop, systemPrompt: systemPrompt}
}

func (r *loopRunner) run(ctx context.Context, agentCtx *core.AgentContext, userMessage string) (string, error) {
	prompt := ""
	if r.systemPrompt != nil {
		prompt = r.systemPrompt(agentCtx)
	}
	result, eventCh := r.loop.Run(ctx, prompt, userMessage, nil, "")
	for range eventCh {
		// Drain: the subtask's own step/tool events aren't broadcast to the
		// parent turn's EventBus — only its final text is aggregated.
	}
	if result == nil {
		return "", fmt.Errorf("core adapter: subtask produced no result")
	}
	return result.FinalContent, nil
}

// RunSubtask implements core.SubAgentRunner by delegating one subtask to
// the shared AgentLoop — OrchestratorCore and SwarmCore both drive this.
func (r *loopRunner) RunSubtask(ctx context.Context, agentCtx *core.AgentContext, subtask string) (string, error) {
	return r.run(ctx, agentCtx, subtask)
}

// loopGenerator implements core.Generator for AdversarialCore by asking the
// shared AgentLoop to draft (or redraft, folding in Critic feedback) a
// response to the task.
type loopGenerator struct {
	runner *loopRunner
}

func NewLoopGenerator(loop *AgentLoop) *loopGenerator {
	return &loopGenerator{runner: NewLoopSubAgentRunner(loop, nil)}
}

func (g *loopGenerator) Generate(ctx context.Context, agentCtx *core.AgentContext, task, feedback string) (string, error) {
	msg := task
	if feedback != "" {
		msg = fmt.Sprintf("%s\n\nA reviewer rejected your previous draft with this feedback — revise accordingly:\n%s", task, feedback)
	}
	return g.runner.run(ctx, agentCtx, msg)
}

// loopCritic implements core.Critic for AdversarialCore: it asks the shared
// AgentLoop to judge a draft and respond with either ACCEPT or REJECT plus
// feedback, on its own dedicated turn (so the critique never shares context
// with the draft it's reviewing).
type loopCritic struct {
	runner *loopRunner
}

func NewLoopCritic(loop *AgentLoop) *loopCritic {
	return &loopCritic{runner: NewLoopSubAgentRunner(loop, func(*core.AgentContext) string {
		return "You are reviewing a draft response against the task it was meant to solve. " +
			"Reply with a line starting 'ACCEPT' if the draft fully solves the task, or a line " +
			"starting 'REJECT' followed by concrete feedback on what is missing or wrong."
	})}
}

func (c *loopCritic) Review(ctx context.Context, task, draft string) (bool, string, error) {
	msg := fmt.Sprintf("Task:\n%s\n\nDraft:\n%s", task, draft)
	verdict, err := c.runner.run(ctx, &core.AgentContext{}, msg)
	if err != nil {
		return false, "", err
	}
	if len(verdict) >= 6 && verdict[:6] == "ACCEPT" {
		return true, "", nil
	}
	return false, verdict, nil
}

// BuildWorkflowSteps constructs the fixed plan → implement → verify
// pipeline WorkflowCore runs for tasks whose shape is already known —
// each step is itself one AgentLoop turn scoped to that phase.
func BuildWorkflowSteps(loop *AgentLoop) []core.WorkflowStep {
	phase := func(name, instruction string) core.WorkflowStep {
		runner := NewLoopSubAgentRunner(loop, func(*core.AgentContext) string { return instruction })
		return core.WorkflowStep{
			Name: name,
			Run: func(ctx context.Context, agentCtx *core.AgentContext, task string) (string, error) {
				return runner.run(ctx, agentCtx, task)
			},
		}
	}
	return []core.WorkflowStep{
		phase("plan", "Produce a short, numbered plan for the task. Do not execute anything yet."),
		phase("implement", "Carry out the plan produced for this task, using whatever tools are needed."),
		phase("verify", "Verify the work just done against the original task and report any remaining gaps."),
	}
}
