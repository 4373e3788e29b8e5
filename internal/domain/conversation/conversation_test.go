package conversation

import "testing"

func TestValidatePairingDetectsOrphan(t *testing.T) {
	req := ToolRequestContentPart("tc-1", NewToolRequest("tc-1", &CallParams{Name: "shell"}))
	conv := NewConversation(NewMessage(RoleAssistant, req))

	violations := conv.ValidatePairing()
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %+v", len(violations), violations)
	}
	if violations[0].ToolRequestID != "tc-1" {
		t.Fatalf("unexpected violation: %+v", violations[0])
	}
}

func TestValidatePairingAcceptsMatchedPair(t *testing.T) {
	req := ToolRequestContentPart("tc-1", NewToolRequest("tc-1", &CallParams{Name: "shell"}))
	resp := ToolResponseContentPart("tc-1", &ToolCallOutput{Output: "ok"})
	conv := NewConversation(
		NewMessage(RoleAssistant, req),
		NewMessage(RoleUser, resp),
	)

	if v := conv.ValidatePairing(); len(v) != 0 {
		t.Fatalf("expected no violations, got %+v", v)
	}
	if p := conv.ValidateAlternation(); len(p) != 0 {
		t.Fatalf("expected no alternation problems, got %+v", p)
	}
}

func TestFixDropsOrphanRequest(t *testing.T) {
	req := ToolRequestContentPart("tc-1", NewToolRequest("tc-1", &CallParams{Name: "shell"}))
	conv := NewConversation(
		NewMessage(RoleUser, TextPart("hi")),
		NewMessage(RoleAssistant, req),
	)

	fixed, log := conv.Fix()
	if len(log) != 1 {
		t.Fatalf("expected 1 repair log line, got %+v", log)
	}
	if fixed.Len() != 1 {
		t.Fatalf("expected orphan-only message to be dropped entirely, got %d messages", fixed.Len())
	}
	if len(fixed.ValidatePairing()) != 0 {
		t.Fatalf("expected fixed conversation to be well-paired")
	}
}

func TestAppendDoesNotMutateReceiver(t *testing.T) {
	conv := NewConversation(NewMessage(RoleUser, TextPart("hi")))
	next := conv.Append(NewMessage(RoleAssistant, TextPart("hello")))

	if conv.Len() != 1 {
		t.Fatalf("expected receiver untouched, got len %d", conv.Len())
	}
	if next.Len() != 2 {
		t.Fatalf("expected appended conversation to have 2 messages, got %d", next.Len())
	}
}
