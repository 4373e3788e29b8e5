package core

import (
	"context"

	"github.com/ngoclaw/goosecore/internal/domain/conversation"
	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// AgentContext is the mutable per-turn state a Core's Execute receives: the
// working conversation, session identity, and the working directory the
// core may use for file-based strategies (structured code-test-fix, etc).
// It intentionally carries no direct dependency on ExtensionManager or the
// provider — a Core obtains those through whatever concrete wiring the
// CoreRegistry's factory closed over, keeping this package free of a
// dependency on domain/service (which depends on domain/core).
type AgentContext struct {
	SessionID      string
	WorkingDir     string
	Conversation   *conversation.Conversation
	SessionMetrics map[string]interface{}
}

// Core is an execution-strategy implementation: a trait-object-equivalent
// interface, one concrete type per registered entity.CoreType (§4.F, §9).
type Core interface {
	Name() string
	Description() string
	Execute(ctx context.Context, agentCtx *AgentContext, task string) (*entity.CoreOutput, error)
}
