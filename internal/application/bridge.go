package application

import (
	"context"
	"fmt"

	"github.com/ngoclaw/goosecore/internal/application/usecase"
	domaintool "github.com/ngoclaw/goosecore/internal/domain/tool"
	grpcinfra "github.com/ngoclaw/goosecore/internal/infrastructure/grpc"
	"github.com/ngoclaw/goosecore/internal/infrastructure/plugin"
)

// toolBridge adapts domaintool.Registry → service.ToolExecutor.
// This allows the AgentLoop to discover and execute tools through the shared registry.
type toolBridge struct {
	registry domaintool.Registry
}

// Execute implements service.ToolExecutor.Execute
func (b *toolBridge) Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error) {
	tool, ok := b.registry.Get(name)
	if !ok {
		return &domaintool.Result{
			Output:  fmt.Sprintf("Tool '%s' not found", name),
			Success: false,
			Error:   fmt.Sprintf("tool '%s' not registered", name),
		}, nil
	}
	return tool.Execute(ctx, args)
}

// GetDefinitions implements service.ToolExecutor.GetDefinitions
func (b *toolBridge) GetDefinitions() []domaintool.Definition {
	return b.registry.List()
}

// GetToolKind implements service.ToolExecutor.GetToolKind
func (b *toolBridge) GetToolKind(name string) domaintool.Kind {
	tool, ok := b.registry.Get(name)
	if !ok {
		return domaintool.KindExecute
	}
	return tool.Kind()
}

// failoverAIClient adapts a usecase.AIServiceClient + grpcinfra.ModelFailover
// pair into a single usecase.AIServiceClient: GenerateResponse goes through
// the failover's cooldown/fallback-chain retry, while streaming and skill
// execution pass straight through (ModelFailover only wraps request/response
// calls).
type failoverAIClient struct {
	failover *grpcinfra.ModelFailover
	client   usecase.AIServiceClient
}

func (f *failoverAIClient) GenerateResponse(ctx context.Context, req *usecase.AIRequest) (*usecase.AIResponse, error) {
	return f.failover.ExecuteWithFailover(ctx, req, f.client)
}

func (f *failoverAIClient) GenerateStream(ctx context.Context, req *usecase.AIRequest) (<-chan *usecase.AIStreamChunk, <-chan error) {
	return f.client.GenerateStream(ctx, req)
}

func (f *failoverAIClient) ExecuteSkill(ctx context.Context, req *usecase.SkillRequest) (*usecase.SkillResponse, error) {
	return f.client.ExecuteSkill(ctx, req)
}

// pluginToolRegistrar adapts domaintool.Registry to plugin.ToolRegistrar, so
// the plugin loader can register/unregister dynamic, handler-backed tools
// against the same registry builtin tools use.
type pluginToolRegistrar struct {
	registry domaintool.Registry
}

func (r *pluginToolRegistrar) RegisterDynamic(name, description string, schema map[string]interface{}, handler func(args map[string]interface{}) (string, error)) error {
	return r.registry.Register(&dynamicPluginTool{
		name:        name,
		description: description,
		schema:      schema,
		handler:     handler,
	})
}

func (r *pluginToolRegistrar) Unregister(name string) {
	_ = r.registry.Unregister(name)
}

// dynamicPluginTool wraps a plugin-exported handler as a domaintool.Tool.
type dynamicPluginTool struct {
	name        string
	description string
	schema      map[string]interface{}
	handler     func(args map[string]interface{}) (string, error)
}

func (t *dynamicPluginTool) Name() string                   { return t.name }
func (t *dynamicPluginTool) Description() string            { return t.description }
func (t *dynamicPluginTool) Kind() domaintool.Kind          { return domaintool.KindExecute }
func (t *dynamicPluginTool) Schema() map[string]interface{} { return t.schema }

func (t *dynamicPluginTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	output, err := t.handler(args)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Output: output, Success: true}, nil
}

var _ plugin.ToolRegistrar = (*pluginToolRegistrar)(nil)
