package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ngoclaw/goosecore/internal/domain/agent"
	"github.com/ngoclaw/goosecore/internal/domain/service"
	domaintool "github.com/ngoclaw/goosecore/internal/domain/tool"
	"go.uber.org/zap"
)

// DAGOrchestrateTool lets the main agent fan out a set of sub-tasks with
// explicit dependencies, running independent tasks in parallel via
// domain/agent's DAGExecutor/InMemorySpawner.
type DAGOrchestrateTool struct {
	llm          service.LLMClient
	tools        service.ToolExecutor
	defaultModel string
	timeout      time.Duration
	logger       *zap.Logger
}

func NewDAGOrchestrateTool(llm service.LLMClient, tools service.ToolExecutor, defaultModel string, timeout time.Duration, logger *zap.Logger) *DAGOrchestrateTool {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &DAGOrchestrateTool{llm: llm, tools: tools, defaultModel: defaultModel, timeout: timeout, logger: logger}
}

func (t *DAGOrchestrateTool) Name() string          { return "dag_orchestrate" }
func (t *DAGOrchestrateTool) Kind() domaintool.Kind { return domaintool.KindExecute }

func (t *DAGOrchestrateTool) Description() string {
	return "Run a set of sub-agent tasks as a dependency graph: independent tasks execute in " +
		"parallel, dependent tasks wait for their dependencies and receive those results as input. " +
		"Use this for multi-step work with a mix of parallelizable and sequential parts " +
		"(e.g. research three topics in parallel, then synthesize)."
}

func (t *DAGOrchestrateTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"nodes": map[string]interface{}{
				"type":        "array",
				"description": "Graph nodes to execute",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"id":           map[string]interface{}{"type": "string", "description": "Unique node id"},
						"task":         map[string]interface{}{"type": "string", "description": "Task description for this node's agent"},
						"dependencies": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "IDs of nodes that must finish first"},
					},
					"required": []string{"id", "task"},
				},
			},
			"max_parallel": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum nodes to run concurrently (default: 4)",
			},
		},
		"required": []string{"nodes"},
	}
}

func (t *DAGOrchestrateTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	rawNodes, ok := args["nodes"].([]interface{})
	if !ok || len(rawNodes) == 0 {
		return &domaintool.Result{Success: false, Error: "nodes is required and must be a non-empty array"}, nil
	}

	maxParallel := 4
	if mp, ok := args["max_parallel"].(float64); ok && mp > 0 {
		maxParallel = int(mp)
	}

	nodes := make([]*agent.DAGNode, 0, len(rawNodes))
	for _, raw := range rawNodes {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return &domaintool.Result{Success: false, Error: "each node must be an object"}, nil
		}
		id, _ := m["id"].(string)
		task, _ := m["task"].(string)
		if id == "" || task == "" {
			return &domaintool.Result{Success: false, Error: "each node requires id and task"}, nil
		}
		var deps []string
		if rawDeps, ok := m["dependencies"].([]interface{}); ok {
			for _, d := range rawDeps {
				if s, ok := d.(string); ok {
					deps = append(deps, s)
				}
			}
		}
		nodes = append(nodes, &agent.DAGNode{
			ID:           id,
			AgentConfig:  agent.DefaultSpawnConfig(id),
			Dependencies: deps,
			Metadata:     map[string]string{"input": task},
		})
	}

	spawner := agent.NewInMemorySpawner(t.logger, 1)
	runFn := func(ctx context.Context, spawned *agent.SpawnedAgent, input string) (string, error) {
		cfg := service.AgentLoopConfig{
			MaxOutputChars: 32000,
			Temperature:    0.7,
			Model:          t.defaultModel,
			ToolTimeout:    30 * time.Second,
		}
		subAgent := service.NewAgentLoop(t.llm, t.tools, cfg, t.logger.Named("dag-node"))
		result, eventCh := subAgent.Run(ctx, "", input, nil, "")
		for range eventCh {
		}
		if result == nil {
			return "", fmt.Errorf("dag node produced no result")
		}
		return result.FinalContent, nil
	}

	executor := agent.NewDAGExecutor(spawner, runFn, agent.DAGConfig{ParentID: "dag_orchestrate", MaxParallel: maxParallel}, t.logger)

	runCtx, cancel := context.WithTimeout(ctx, t.timeout*time.Duration(len(nodes)))
	defer cancel()

	results, err := executor.Execute(runCtx, nodes)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error(), Output: formatDAGResults(nodes, results)}, nil
	}

	return &domaintool.Result{
		Output:  formatDAGResults(nodes, results),
		Success: true,
		Metadata: map[string]interface{}{
			"node_count": len(nodes),
		},
	}, nil
}

func formatDAGResults(nodes []*agent.DAGNode, results map[string]string) string {
	var sb strings.Builder
	sb.WriteString("=== DAG Orchestration Results ===\n\n")
	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("[%s] (%s):\n%s\n\n", n.ID, n.Status, results[n.ID]))
	}
	return sb.String()
}
