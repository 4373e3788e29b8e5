package tool

import (
	"context"
	"fmt"

	domaintool "github.com/ngoclaw/goosecore/internal/domain/tool"
	"github.com/ngoclaw/goosecore/internal/infrastructure/sandbox"
	"go.uber.org/zap"
)

// registryPromoter adapts a domaintool.Registry to SkillManager's ToolPromoter,
// registering each promoted skill script as a scriptedCommandTool backed by
// the sandbox shell the rest of the tool layer already uses.
type registryPromoter struct {
	registry domaintool.Registry
	sandbox  *sandbox.ProcessSandbox
	logger   *zap.Logger
}

func (p *registryPromoter) RegisterCommand(name, description, command string, aliases map[string][]string) error {
	return p.registry.Register(&scriptedCommandTool{
		name:        name,
		description: description,
		command:     command,
		sandbox:     p.sandbox,
		logger:      p.logger,
	})
}

// scriptedCommandTool runs a fixed shell command promoted from a skill's
// scripts/ directory. Call-time arguments are appended to the command as a
// raw string rather than structured flags, since promoted scripts define
// their own CLI conventions.
type scriptedCommandTool struct {
	name        string
	description string
	command     string
	sandbox     *sandbox.ProcessSandbox
	logger      *zap.Logger
}

func (t *scriptedCommandTool) Name() string          { return t.name }
func (t *scriptedCommandTool) Description() string   { return t.description }
func (t *scriptedCommandTool) Kind() domaintool.Kind { return domaintool.KindExecute }

func (t *scriptedCommandTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"args": map[string]interface{}{
				"type":        "string",
				"description": "Raw argument string appended to the promoted skill command",
			},
		},
	}
}

func (t *scriptedCommandTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	if t.sandbox == nil {
		return &domaintool.Result{Success: false, Error: "sandbox unavailable, skill tools disabled"}, nil
	}

	cmd := t.command
	if extra, ok := args["args"].(string); ok && extra != "" {
		cmd = fmt.Sprintf("%s %s", cmd, extra)
	}

	result, err := t.sandbox.ExecuteShell(ctx, cmd)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	if result.ExitCode != 0 {
		return &domaintool.Result{
			Output:  result.Stdout + result.Stderr,
			Success: false,
			Error:   fmt.Sprintf("exit code %d", result.ExitCode),
		}, nil
	}
	return &domaintool.Result{Output: result.Stdout, Success: true}, nil
}
