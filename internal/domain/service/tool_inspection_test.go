package service

import (
	"testing"

	"github.com/ngoclaw/goosecore/internal/domain/conversation"
)

func TestSecurityInspector_FlagsDangerousCommand(t *testing.T) {
	inspector := NewSecurityInspector(nil)
	requests := []*conversation.ToolRequest{
		newToolRequest("1", "shell_exec", map[string]interface{}{"command": "rm -rf /tmp/data"}),
	}
	findings := inspector.Inspect(requests)
	if len(findings) != 1 || findings[0].Severity != SeverityHigh {
		t.Fatalf("expected one high-severity finding, got %+v", findings)
	}
}

func TestSecurityInspector_IgnoresSafeCommand(t *testing.T) {
	inspector := NewSecurityInspector(nil)
	requests := []*conversation.ToolRequest{
		newToolRequest("1", "shell_exec", map[string]interface{}{"command": "ls -la"}),
	}
	if findings := inspector.Inspect(requests); len(findings) != 0 {
		t.Fatalf("expected no findings, got %+v", findings)
	}
}

func TestPermissionInspector_FlagsToolOutsideAllowlist(t *testing.T) {
	inspector := NewPermissionInspector([]string{"read_file"})
	requests := []*conversation.ToolRequest{
		newToolRequest("1", "shell_exec", nil),
	}
	findings := inspector.Inspect(requests)
	if len(findings) != 1 {
		t.Fatalf("expected one finding for disallowed tool, got %+v", findings)
	}
}

func TestPermissionInspector_EmptyAllowlistAllowsEverything(t *testing.T) {
	inspector := NewPermissionInspector(nil)
	requests := []*conversation.ToolRequest{newToolRequest("1", "anything", nil)}
	if findings := inspector.Inspect(requests); len(findings) != 0 {
		t.Fatalf("expected no findings with empty allowlist, got %+v", findings)
	}
}

func TestRepetitionInspector_EscalatesAfterMaxRepeats(t *testing.T) {
	inspector := NewRepetitionInspector(2, 20)
	args := map[string]interface{}{"path": "a.txt"}

	inspector.RecordTurn(1)
	inspector.Inspect([]*conversation.ToolRequest{newToolRequest("1", "read_file", args)})
	inspector.RecordTurn(2)
	inspector.Inspect([]*conversation.ToolRequest{newToolRequest("2", "read_file", args)})
	inspector.RecordTurn(3)
	findings := inspector.Inspect([]*conversation.ToolRequest{newToolRequest("3", "read_file", args)})

	if len(findings) != 1 || findings[0].Kind != "repetition" {
		t.Fatalf("expected a repetition finding on the third identical call, got %+v", findings)
	}
}

func TestRepetitionInspector_DifferentArgumentsDoNotAccumulate(t *testing.T) {
	inspector := NewRepetitionInspector(2, 20)
	inspector.RecordTurn(1)
	inspector.Inspect([]*conversation.ToolRequest{newToolRequest("1", "read_file", map[string]interface{}{"path": "a.txt"})})
	inspector.RecordTurn(2)
	inspector.Inspect([]*conversation.ToolRequest{newToolRequest("2", "read_file", map[string]interface{}{"path": "b.txt"})})
	inspector.RecordTurn(3)
	findings := inspector.Inspect([]*conversation.ToolRequest{newToolRequest("3", "read_file", map[string]interface{}{"path": "c.txt"})})

	if len(findings) != 0 {
		t.Fatalf("expected no repetition finding for distinct arguments, got %+v", findings)
	}
}

func TestToolInspectionManager_SecurityPreemptsPermission(t *testing.T) {
	manager := NewToolInspectionManager(
		NewSecurityInspector(nil),
		NewPermissionInspector([]string{"read_file"}),
		NewRepetitionInspector(5, 20),
	)
	requests := []*conversation.ToolRequest{
		newToolRequest("1", "shell_exec", map[string]interface{}{"command": "rm -rf /"}),
	}
	findings, preempted := manager.InspectAll(requests)

	if !preempted["1"] {
		t.Fatalf("expected request 1 to be preempted by the security finding")
	}
	permissionFindings := 0
	for _, f := range findings {
		if f.Kind == "not_in_allowlist" {
			permissionFindings++
		}
	}
	if permissionFindings != 0 {
		t.Fatalf("expected permission inspector to skip a preempted request, got %d findings", permissionFindings)
	}
}
