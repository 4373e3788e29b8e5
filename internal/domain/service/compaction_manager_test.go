package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/conversation"
)

func TestCompactionManager_ShouldCompact(t *testing.T) {
	m := NewCompactionManager(zap.NewNop())

	if m.ShouldCompact(0.9, 3) {
		t.Fatal("expected no compaction below min message count")
	}
	if !m.ShouldCompact(0.9, 20) {
		t.Fatal("expected compaction above threshold with enough messages")
	}
	if m.ShouldCompact(0.5, 20) {
		t.Fatal("expected no compaction below threshold")
	}
}

func TestCompactionManager_CompactKeepsSystemAndTail(t *testing.T) {
	m := NewCompactionManager(zap.NewNop(), WithCompactionKeepLast(2))

	msgs := []*conversation.Message{
		conversation.NewTextMessage(conversation.RoleSystem, "system prompt"),
	}
	for i := 0; i < 10; i++ {
		msgs = append(msgs, conversation.NewTextMessage(conversation.RoleUser, "hello"))
		msgs = append(msgs, conversation.NewTextMessage(conversation.RoleAssistant, "world"))
	}
	conv := conversation.NewConversation(msgs...)

	out, err := m.Compact(context.Background(), conv, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Messages[0].Role != conversation.RoleSystem {
		t.Fatal("expected system prompt preserved as first message")
	}
	if out.Len() != 1+1+2 {
		t.Fatalf("expected system + summary + 2 tail messages, got %d", out.Len())
	}
	last := out.Messages[out.Len()-1]
	if last.Text() != "world" {
		t.Fatalf("expected last tail message preserved, got %q", last.Text())
	}
}

func TestCompactionManager_CompactNoopWhenShort(t *testing.T) {
	m := NewCompactionManager(zap.NewNop(), WithCompactionKeepLast(10))

	conv := conversation.NewConversation(
		conversation.NewTextMessage(conversation.RoleUser, "hi"),
	)

	out, err := m.Compact(context.Background(), conv, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != conv {
		t.Fatal("expected the same conversation returned unchanged")
	}
}

func TestCompactionManager_RecordCompactionTracksAverage(t *testing.T) {
	m := NewCompactionManager(zap.NewNop())

	m.RecordCompaction(1000, 400)
	m.RecordCompaction(1000, 600)

	stats := m.Stats()
	if stats.TotalCompactions != 2 {
		t.Fatalf("expected 2 compactions recorded, got %d", stats.TotalCompactions)
	}
	if stats.TotalTokensSaved != 1000 {
		t.Fatalf("expected 1000 tokens saved, got %d", stats.TotalTokensSaved)
	}
	if stats.AverageReductionPercent <= 40 || stats.AverageReductionPercent >= 60 {
		t.Fatalf("expected average reduction near 50%%, got %f", stats.AverageReductionPercent)
	}
}
