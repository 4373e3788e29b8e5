package service

import (
	"github.com/ngoclaw/goosecore/internal/domain/conversation"
)

// ToolMode is the per-tool execution mode a PolicyRule is keyed against.
type ToolMode string

const (
	ModeReadOnly ToolMode = "read_only"
	ModeWrite    ToolMode = "write"
	ModeManage   ToolMode = "manage"
)

// GooseMode is the session-level approval posture (§4.J).
type GooseMode string

const (
	GooseModeAuto GooseMode = "auto"
	GooseModeChat GooseMode = "chat"
)

// PolicyDecision is the per-tool policy verdict, independent of GooseMode.
type PolicyDecision string

const (
	AlwaysAllow   PolicyDecision = "always_allow"
	AlwaysAsk     PolicyDecision = "always_ask"
	AlwaysDeny    PolicyDecision = "always_deny"
	DefaultByMode PolicyDecision = "default_by_mode"
)

// PolicyRule is one entry in the per-tool policy map, keyed by (tool name, mode).
type PolicyRule struct {
	ToolName string
	Mode     ToolMode
	Decision PolicyDecision
}

// PermissionCheckResult partitions a batch of ToolRequest into exactly one
// of three buckets (§4.J).
type PermissionCheckResult struct {
	Approved      []*conversation.ToolRequest
	NeedsApproval []*conversation.ToolRequest
	Denied        []*conversation.ToolRequest
}

// PermissionGate implements §4.J: combine Finding output with a per-tool
// policy map and the session's GooseMode to partition ToolRequests.
type PermissionGate struct {
	policy map[string]PolicyRule // keyed by tool name
	mode   GooseMode
}

// NewPermissionGate builds a PermissionGate over a policy map and the
// current GooseMode.
func NewPermissionGate(policy map[string]PolicyRule, mode GooseMode) *PermissionGate {
	if policy == nil {
		policy = make(map[string]PolicyRule)
	}
	return &PermissionGate{policy: policy, mode: mode}
}

// SetMode updates the session's GooseMode (e.g. on a /chat-mode toggle).
func (g *PermissionGate) SetMode(mode GooseMode) { g.mode = mode }

// Check partitions requests into approved/needs_approval/denied, given the
// merged Finding list and the preempted set from ToolInspectionManager.
// A preempted request (a High+ security finding) goes to denied, and a
// request named by a "repetition" finding goes to needs_approval; findings
// of other kinds are not consulted. Every other routing decision comes from
// the policy map and GooseMode.
func (g *PermissionGate) Check(requests []*conversation.ToolRequest, findings []Finding, preempted map[string]bool) PermissionCheckResult {
	var result PermissionCheckResult

	escalated := make(map[string]bool)
	for _, f := range findings {
		if f.Kind == "repetition" {
			escalated[f.RequestID] = true
		}
	}

	for _, req := range requests {
		if preempted[req.ID] {
			result.Denied = append(result.Denied, req)
			continue
		}
		if escalated[req.ID] {
			result.NeedsApproval = append(result.NeedsApproval, req)
			continue
		}

		call, ok := req.ToolCall.Unwrap()
		if !ok || call == nil {
			result.Denied = append(result.Denied, req)
			continue
		}

		switch g.decide(call.Name) {
		case AlwaysAllow:
			result.Approved = append(result.Approved, req)
		case AlwaysAsk:
			result.NeedsApproval = append(result.NeedsApproval, req)
		case AlwaysDeny:
			result.Denied = append(result.Denied, req)
		default: // DefaultByMode
			result.routeByMode(req, g.mode, g.modeForTool(call.Name))
		}
	}

	return result
}

// modeForTool resolves the ToolMode a tool name is keyed under in the
// policy map; tools absent from the map default to Write (the conservative
// choice — require explicit configuration to relax to ReadOnly).
func (g *PermissionGate) modeForTool(toolName string) ToolMode {
	if rule, ok := g.policy[toolName]; ok {
		return rule.Mode
	}
	return ModeWrite
}

func (g *PermissionGate) decide(toolName string) PolicyDecision {
	if rule, ok := g.policy[toolName]; ok {
		return rule.Decision
	}
	return DefaultByMode
}

func (r *PermissionCheckResult) routeByMode(req *conversation.ToolRequest, mode GooseMode, toolMode ToolMode) {
	switch mode {
	case GooseModeChat:
		r.Denied = append(r.Denied, req)
	default: // Auto
		if toolMode == ModeReadOnly {
			r.Approved = append(r.Approved, req)
		} else {
			r.NeedsApproval = append(r.NeedsApproval, req)
		}
	}
}
