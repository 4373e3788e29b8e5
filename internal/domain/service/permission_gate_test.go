package service

import (
	"testing"

	"github.com/ngoclaw/goosecore/internal/domain/conversation"
)

func newToolRequest(id, name string, args map[string]interface{}) *conversation.ToolRequest {
	return conversation.NewToolRequest(id, &conversation.CallParams{Name: name, Arguments: args})
}

func TestPermissionGate_AlwaysAllow(t *testing.T) {
	gate := NewPermissionGate(map[string]PolicyRule{
		"read_file": {Decision: AlwaysAllow},
	}, GooseModeAuto)

	result := gate.Check([]*conversation.ToolRequest{newToolRequest("1", "read_file", nil)}, nil, nil)
	if len(result.Approved) != 1 {
		t.Fatalf("expected 1 approved, got %d", len(result.Approved))
	}
}

func TestPermissionGate_AlwaysDeny(t *testing.T) {
	gate := NewPermissionGate(map[string]PolicyRule{
		"shell_exec": {Decision: AlwaysDeny},
	}, GooseModeAuto)

	result := gate.Check([]*conversation.ToolRequest{newToolRequest("1", "shell_exec", nil)}, nil, nil)
	if len(result.Denied) != 1 {
		t.Fatalf("expected 1 denied, got %d", len(result.Denied))
	}
}

func TestPermissionGate_ChatModeDeniesDefaultByMode(t *testing.T) {
	gate := NewPermissionGate(nil, GooseModeChat)

	result := gate.Check([]*conversation.ToolRequest{newToolRequest("1", "write_file", nil)}, nil, nil)
	if len(result.Denied) != 1 {
		t.Fatalf("expected chat mode to deny, got approved=%d needs=%d denied=%d",
			len(result.Approved), len(result.NeedsApproval), len(result.Denied))
	}
}

func TestPermissionGate_AutoModeReadOnlyApproved(t *testing.T) {
	gate := NewPermissionGate(map[string]PolicyRule{
		"read_file": {Mode: ModeReadOnly, Decision: DefaultByMode},
	}, GooseModeAuto)

	result := gate.Check([]*conversation.ToolRequest{newToolRequest("1", "read_file", nil)}, nil, nil)
	if len(result.Approved) != 1 {
		t.Fatalf("expected read-only tool approved under auto mode, got %+v", result)
	}
}

func TestPermissionGate_PreemptedRequestGoesToDenied(t *testing.T) {
	gate := NewPermissionGate(map[string]PolicyRule{
		"shell_exec": {Decision: AlwaysAllow},
	}, GooseModeAuto)

	preempted := map[string]bool{"1": true}
	result := gate.Check([]*conversation.ToolRequest{newToolRequest("1", "shell_exec", nil)}, nil, preempted)
	if len(result.Denied) != 1 {
		t.Fatalf("expected preempted request denied despite AlwaysAllow policy, got %+v", result)
	}
}
