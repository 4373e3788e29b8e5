package tool

import (
	"context"

	"github.com/ngoclaw/goosecore/internal/domain/conversation"
)

// ExtensionConfig describes one configured extension (an MCP server or
// builtin tool group) the ExtensionManager can add/remove/enable.
type ExtensionConfig struct {
	Name    string                 `json:"name"`
	Kind    string                 `json:"kind"` // "builtin" | "mcp_stdio" | "mcp_sse"
	Command string                 `json:"command,omitempty"`
	Args    []string               `json:"args,omitempty"`
	URL     string                 `json:"url,omitempty"`
	Env     map[string]string      `json:"env,omitempty"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

// ShellGuard restricts what a dispatched shell-capable tool may execute. A
// nil ShellGuard means no extra restriction beyond the tool's own policy.
type ShellGuard interface {
	Allow(command string) bool
}

// ExtensionManager is the §4.K contract consumed by the core: the thing
// ReplyDriver and the concrete Cores dispatch tool calls through. All
// dispatch operations are cancellable via ctx; cancellation MUST drop the
// notification stream and resolve the result with an ErrorData tagged
// conversation.ErrorCodeCancelled.
type ExtensionManager interface {
	ListTools(ctx context.Context, sessionID string, filter func(Definition) bool) ([]Definition, error)
	Dispatch(ctx context.Context, sessionID string, params conversation.CallParams, workingDir string, shellGuard ShellGuard) *conversation.ToolCallResult
	IsExtensionEnabled(name string) bool
	AddExtension(ctx context.Context, cfg ExtensionConfig) error
	RemoveExtension(ctx context.Context, name string, sessionID string) error
	GetExtensionConfigs() []ExtensionConfig
}
