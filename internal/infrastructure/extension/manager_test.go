package extension

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/conversation"
	domaintool "github.com/ngoclaw/goosecore/internal/domain/tool"
)

type fakeTool struct {
	name    string
	kind    domaintool.Kind
	execute func(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error)
}

func (t *fakeTool) Name() string                   { return t.name }
func (t *fakeTool) Description() string            { return "fake tool for tests" }
func (t *fakeTool) Kind() domaintool.Kind          { return t.kind }
func (t *fakeTool) Schema() map[string]interface{} { return map[string]interface{}{} }
func (t *fakeTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	return t.execute(ctx, args)
}

type denyAllShellGuard struct{}

func (denyAllShellGuard) Allow(command string) bool { return false }

func newTestManager(t *testing.T) (*Manager, domaintool.Registry) {
	t.Helper()
	registry := domaintool.NewInMemoryRegistry()
	policy := &domaintool.Policy{}
	return New(registry, policy, nil, zap.NewNop()), registry
}

func drainResult(t *testing.T, result *conversation.ToolCallResult) conversation.Result[*conversation.ToolCallOutput, *conversation.ErrorData] {
	t.Helper()
	for range result.Notifications {
	}
	select {
	case r := <-result.Result:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch result")
		panic("unreachable")
	}
}

func TestManager_Dispatch_SuccessfulTool(t *testing.T) {
	mgr, registry := newTestManager(t)
	registry.Register(&fakeTool{
		name: "echo",
		kind: domaintool.KindRead,
		execute: func(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
			return &domaintool.Result{Output: "hello", Success: true}, nil
		},
	})

	handle := mgr.Dispatch(context.Background(), "sess-1", conversation.CallParams{Name: "echo"}, "/workspace", nil)
	result := drainResult(t, handle)

	output, ok := result.Unwrap()
	if !ok {
		errData, _ := result.UnwrapErr()
		t.Fatalf("expected success, got error: %+v", errData)
	}
	if output.Output != "hello" {
		t.Errorf("expected output %q, got %q", "hello", output.Output)
	}
}

func TestManager_Dispatch_UnknownToolFails(t *testing.T) {
	mgr, _ := newTestManager(t)

	handle := mgr.Dispatch(context.Background(), "sess-1", conversation.CallParams{Name: "nope"}, "", nil)
	result := drainResult(t, handle)

	if result.IsOk() {
		t.Fatalf("expected an error for an unregistered tool")
	}
	errData, _ := result.UnwrapErr()
	if errData.Code != "tool_not_found" {
		t.Errorf("expected tool_not_found, got %s", errData.Code)
	}
}

func TestManager_Dispatch_DeniedByPolicy(t *testing.T) {
	registry := domaintool.NewInMemoryRegistry()
	registry.Register(&fakeTool{
		name: "shell",
		kind: domaintool.KindExecute,
		execute: func(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
			return &domaintool.Result{Output: "ran", Success: true}, nil
		},
	})
	policy := &domaintool.Policy{DenyList: []string{"shell"}}
	mgr := New(registry, policy, nil, zap.NewNop())

	handle := mgr.Dispatch(context.Background(), "sess-1", conversation.CallParams{Name: "shell"}, "", nil)
	result := drainResult(t, handle)

	if result.IsOk() {
		t.Fatalf("expected policy denial")
	}
	errData, _ := result.UnwrapErr()
	if errData.Code != "denied_by_policy" {
		t.Errorf("expected denied_by_policy, got %s", errData.Code)
	}
}

func TestManager_Dispatch_DeniedByShellGuard(t *testing.T) {
	registry := domaintool.NewInMemoryRegistry()
	registry.Register(&fakeTool{
		name: "shell",
		kind: domaintool.KindExecute,
		execute: func(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
			return &domaintool.Result{Output: "ran", Success: true}, nil
		},
	})
	mgr := New(registry, &domaintool.Policy{}, nil, zap.NewNop())

	handle := mgr.Dispatch(context.Background(), "sess-1", conversation.CallParams{Name: "shell", Arguments: map[string]interface{}{"command": "rm -rf /"}}, "", denyAllShellGuard{})
	result := drainResult(t, handle)

	if result.IsOk() {
		t.Fatalf("expected shell guard denial")
	}
	errData, _ := result.UnwrapErr()
	if errData.Code != "denied_by_shell_guard" {
		t.Errorf("expected denied_by_shell_guard, got %s", errData.Code)
	}
}

func TestManager_Dispatch_ToolErrorSurfacesAsExecutionError(t *testing.T) {
	mgr, registry := newTestManager(t)
	registry.Register(&fakeTool{
		name: "broken",
		kind: domaintool.KindRead,
		execute: func(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
			return nil, errors.New("boom")
		},
	})

	handle := mgr.Dispatch(context.Background(), "sess-1", conversation.CallParams{Name: "broken"}, "", nil)
	result := drainResult(t, handle)

	if result.IsOk() {
		t.Fatalf("expected an execution error")
	}
	errData, _ := result.UnwrapErr()
	if errData.Code != "execution_error" {
		t.Errorf("expected execution_error, got %s", errData.Code)
	}
}

func TestManager_Dispatch_CancelledBeforeExecution(t *testing.T) {
	mgr, registry := newTestManager(t)
	ran := false
	registry.Register(&fakeTool{
		name: "slow",
		kind: domaintool.KindRead,
		execute: func(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
			ran = true
			return &domaintool.Result{Output: "done", Success: true}, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handle := mgr.Dispatch(ctx, "sess-1", conversation.CallParams{Name: "slow"}, "", nil)
	result := drainResult(t, handle)

	if result.IsOk() {
		t.Fatalf("expected cancellation error")
	}
	errData, _ := result.UnwrapErr()
	if errData.Code != conversation.ErrorCodeCancelled {
		t.Errorf("expected %s, got %s", conversation.ErrorCodeCancelled, errData.Code)
	}
	if ran {
		t.Errorf("expected the tool to never execute once cancelled")
	}
}

func TestManager_AddExtension_BuiltinMarksEnabled(t *testing.T) {
	mgr, _ := newTestManager(t)

	if err := mgr.AddExtension(context.Background(), domaintool.ExtensionConfig{Name: "core", Kind: "builtin"}); err != nil {
		t.Fatalf("add extension: %v", err)
	}
	if !mgr.IsExtensionEnabled("core") {
		t.Fatalf("expected core to be enabled")
	}

	configs := mgr.GetExtensionConfigs()
	if len(configs) != 1 || configs[0].Name != "core" {
		t.Fatalf("expected one config named core, got %+v", configs)
	}
}

func TestManager_AddExtension_MCPWithoutManagerErrors(t *testing.T) {
	mgr, _ := newTestManager(t)

	err := mgr.AddExtension(context.Background(), domaintool.ExtensionConfig{Name: "ext-mcp", Kind: "mcp_sse", URL: "http://localhost:9000"})
	if err == nil {
		t.Fatalf("expected an error adding an mcp extension with no MCPManager configured")
	}
}

func TestManager_AddExtension_UnknownKindErrors(t *testing.T) {
	mgr, _ := newTestManager(t)

	if err := mgr.AddExtension(context.Background(), domaintool.ExtensionConfig{Name: "weird", Kind: "bogus"}); err == nil {
		t.Fatalf("expected an error for an unknown extension kind")
	}
}

func TestManager_RemoveExtension_UnknownNameErrors(t *testing.T) {
	mgr, _ := newTestManager(t)

	if err := mgr.RemoveExtension(context.Background(), "never-added", "sess-1"); err == nil {
		t.Fatalf("expected an error removing an unregistered extension")
	}
}

func TestManager_RemoveExtension_DisablesBuiltin(t *testing.T) {
	mgr, _ := newTestManager(t)

	if err := mgr.AddExtension(context.Background(), domaintool.ExtensionConfig{Name: "core", Kind: "builtin"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := mgr.RemoveExtension(context.Background(), "core", "sess-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if mgr.IsExtensionEnabled("core") {
		t.Fatalf("expected core to be disabled after removal")
	}
}

func TestManager_ListTools_AppliesFilterOnTopOfPolicy(t *testing.T) {
	mgr, registry := newTestManager(t)
	registry.Register(&fakeTool{name: "a", kind: domaintool.KindRead, execute: noopExecute})
	registry.Register(&fakeTool{name: "b", kind: domaintool.KindRead, execute: noopExecute})

	defs, err := mgr.ListTools(context.Background(), "sess-1", func(d domaintool.Definition) bool {
		return d.Name == "a"
	})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "a" {
		t.Fatalf("expected only tool a, got %+v", defs)
	}
}

func noopExecute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	return &domaintool.Result{Success: true}, nil
}
