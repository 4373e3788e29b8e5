// Package extension provides the default ExtensionManager (§4.K): the
// concrete thing ReplyDriver and the active Core dispatch tool calls
// through, backing the domain/tool.ExtensionManager contract with an
// in-process tool Registry plus an optional MCPManager for external
// servers.
package extension

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/conversation"
	domaintool "github.com/ngoclaw/goosecore/internal/domain/tool"
	infratool "github.com/ngoclaw/goosecore/internal/infrastructure/tool"
)

// Manager is the default ExtensionManager: builtin tools dispatch directly
// against the Registry, while "mcp_stdio"/"mcp_sse" extensions are
// delegated to an MCPManager that owns the actual server lifecycle.
type Manager struct {
	registry domaintool.Registry
	policy   *domaintool.Policy
	mcp      *infratool.MCPManager
	logger   *zap.Logger

	mu      sync.RWMutex
	configs map[string]domaintool.ExtensionConfig
	enabled map[string]bool
}

// New creates a Manager. mcp may be nil, in which case AddExtension/
// RemoveExtension reject mcp_stdio/mcp_sse configs.
func New(registry domaintool.Registry, policy *domaintool.Policy, mcp *infratool.MCPManager, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		registry: registry,
		policy:   policy,
		mcp:      mcp,
		logger:   logger,
		configs:  make(map[string]domaintool.ExtensionConfig),
		enabled:  make(map[string]bool),
	}
}

// ListTools returns the policy-filtered tool definitions, further narrowed
// by filter when non-nil.
func (m *Manager) ListTools(ctx context.Context, sessionID string, filter func(domaintool.Definition) bool) ([]domaintool.Definition, error) {
	enforcer := domaintool.NewPolicyEnforcer(m.policy, m.registry)
	all := enforcer.FilteredList()
	if filter == nil {
		return all, nil
	}

	out := make([]domaintool.Definition, 0, len(all))
	for _, def := range all {
		if filter(def) {
			out = append(out, def)
		}
	}
	return out, nil
}

// Dispatch runs one tool call against the Registry, returning a handle
// whose Result resolves exactly once. Cancellation of ctx resolves the
// result with ErrorCodeCancelled without running or completing the tool.
func (m *Manager) Dispatch(ctx context.Context, sessionID string, params conversation.CallParams, workingDir string, shellGuard domaintool.ShellGuard) *conversation.ToolCallResult {
	notifications := make(chan conversation.ServerNotification)
	results := make(chan conversation.Result[*conversation.ToolCallOutput, *conversation.ErrorData], 1)

	go func() {
		defer close(notifications)
		defer close(results)

		t, ok := m.registry.Get(params.Name)
		if !ok {
			results <- conversation.Err[*conversation.ToolCallOutput, *conversation.ErrorData](&conversation.ErrorData{
				Code:    "tool_not_found",
				Message: fmt.Sprintf("tool %q is not registered", params.Name),
			})
			return
		}

		if !m.policy.IsAllowed(params.Name) {
			results <- conversation.Err[*conversation.ToolCallOutput, *conversation.ErrorData](&conversation.ErrorData{
				Code:    "denied_by_policy",
				Message: fmt.Sprintf("tool %q is not allowed by the current policy", params.Name),
			})
			return
		}

		if t.Kind() == domaintool.KindExecute && shellGuard != nil {
			if cmd, ok := params.Arguments["command"].(string); ok && !shellGuard.Allow(cmd) {
				results <- conversation.Err[*conversation.ToolCallOutput, *conversation.ErrorData](&conversation.ErrorData{
					Code:    "denied_by_shell_guard",
					Message: fmt.Sprintf("command rejected by shell guard: %s", cmd),
				})
				return
			}
		}

		select {
		case <-ctx.Done():
			results <- conversation.Err[*conversation.ToolCallOutput, *conversation.ErrorData](&conversation.ErrorData{
				Code:    conversation.ErrorCodeCancelled,
				Message: "dispatch cancelled before execution",
			})
			return
		default:
		}

		args := params.Arguments
		if args == nil {
			args = map[string]interface{}{}
		}
		if workingDir != "" {
			if _, exists := args["working_dir"]; !exists {
				args["working_dir"] = workingDir
			}
		}

		notifications <- conversation.ServerNotification{
			RequestID: params.Name,
			Kind:      "started",
			Payload:   map[string]interface{}{"tool": params.Name, "session_id": sessionID},
		}

		result, err := t.Execute(ctx, args)
		if ctx.Err() != nil {
			results <- conversation.Err[*conversation.ToolCallOutput, *conversation.ErrorData](&conversation.ErrorData{
				Code:    conversation.ErrorCodeCancelled,
				Message: "dispatch cancelled mid-execution",
			})
			return
		}
		if err != nil {
			results <- conversation.Err[*conversation.ToolCallOutput, *conversation.ErrorData](&conversation.ErrorData{
				Code:    "execution_error",
				Message: err.Error(),
			})
			return
		}

		results <- conversation.Ok[*conversation.ToolCallOutput, *conversation.ErrorData](&conversation.ToolCallOutput{
			Output:   result.Output,
			Display:  result.DisplayOrOutput(),
			IsError:  !result.Success,
			Metadata: result.Metadata,
		})
	}()

	return &conversation.ToolCallResult{Notifications: notifications, Result: results}
}

// IsExtensionEnabled reports whether name has been added and not since
// removed.
func (m *Manager) IsExtensionEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled[name]
}

// AddExtension registers cfg. Builtin extensions are assumed already
// registered into the Registry (via infrastructure/tool.RegisterAllTools)
// and are just marked enabled; mcp_stdio/mcp_sse extensions are delegated
// to the MCPManager, which discovers and registers their tools.
func (m *Manager) AddExtension(ctx context.Context, cfg domaintool.ExtensionConfig) error {
	switch cfg.Kind {
	case "builtin":
		// nothing further to wire; tools are already in the Registry.
	case "mcp_stdio", "mcp_sse":
		if m.mcp == nil {
			return fmt.Errorf("extension: no MCPManager configured, cannot add %q", cfg.Name)
		}
		endpoint := cfg.URL
		if endpoint == "" {
			endpoint = cfg.Command
		}
		if err := m.mcp.AddServer(cfg.Name, endpoint); err != nil {
			return fmt.Errorf("extension: add mcp server %q: %w", cfg.Name, err)
		}
	default:
		return fmt.Errorf("extension: unknown kind %q for %q", cfg.Kind, cfg.Name)
	}

	m.mu.Lock()
	m.configs[cfg.Name] = cfg
	m.enabled[cfg.Name] = true
	m.mu.Unlock()

	m.logger.Info("extension added", zap.String("name", cfg.Name), zap.String("kind", cfg.Kind))
	return nil
}

// RemoveExtension disables cfg and, for MCP extensions, tears down the
// underlying server connection.
func (m *Manager) RemoveExtension(ctx context.Context, name string, sessionID string) error {
	m.mu.RLock()
	cfg, known := m.configs[name]
	m.mu.RUnlock()
	if !known {
		return fmt.Errorf("extension: %q is not registered", name)
	}

	if (cfg.Kind == "mcp_stdio" || cfg.Kind == "mcp_sse") && m.mcp != nil {
		if err := m.mcp.RemoveServer(name); err != nil {
			return fmt.Errorf("extension: remove mcp server %q: %w", name, err)
		}
	}

	m.mu.Lock()
	delete(m.configs, name)
	m.enabled[name] = false
	m.mu.Unlock()

	m.logger.Info("extension removed", zap.String("name", name), zap.String("session_id", sessionID))
	return nil
}

// GetExtensionConfigs returns every configured extension, enabled or not.
func (m *Manager) GetExtensionConfigs() []domaintool.ExtensionConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domaintool.ExtensionConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		out = append(out, cfg)
	}
	return out
}

var _ domaintool.ExtensionManager = (*Manager)(nil)
