package core

import (
	"context"
	"fmt"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// FreeformCore is the default-registered core (§4.F). Per §4.L, the
// ReplyDriver never calls FreeformCore.Execute directly — when the active
// core is Freeform, the driver runs its own per-iteration loop instead of
// dispatching to a Core. FreeformCore exists so the registry always has a
// valid entry to report from ListCores/ActiveCore and to switch back to.
type FreeformCore struct{}

// NewFreeformCore constructs the sentinel Freeform core.
func NewFreeformCore() *FreeformCore { return &FreeformCore{} }

func (c *FreeformCore) Name() string { return string(entity.CoreFreeform) }

func (c *FreeformCore) Description() string {
	return "default ReplyDriver turn loop: stream, categorize tools, dispatch, checkpoint"
}

// Execute is never reached by the driver's normal dispatch path (see above);
// it returns an explanatory error so a misrouted caller fails loudly rather
// than silently no-opping.
func (c *FreeformCore) Execute(ctx context.Context, agentCtx *AgentContext, task string) (*entity.CoreOutput, error) {
	return nil, fmt.Errorf("freeform core has no execute(): the reply driver runs its own loop for this core type")
}
