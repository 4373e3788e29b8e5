package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	domainmemory "github.com/ngoclaw/goosecore/internal/domain/memory"
)

func newTestSubsystem() *Subsystem {
	return NewSubsystem(domainmemory.NewSimpleEmbedder(32), zap.NewNop())
}

func TestSubsystem_StoreAndRecallAcrossTiers(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubsystem()

	if err := sub.Store(ctx, entity.MemoryEntry{Content: "the deploy pipeline uses github actions", Tier: entity.MemoryWorking, Importance: 0.6}); err != nil {
		t.Fatalf("store working: %v", err)
	}
	if err := sub.Store(ctx, entity.MemoryEntry{Content: "the deploy pipeline was migrated to github actions last quarter", Tier: entity.MemorySemantic, Importance: 0.8}); err != nil {
		t.Fatalf("store semantic: %v", err)
	}

	results, err := sub.Recall(ctx, "deploy pipeline github actions", entity.RecallContext{MinRelevance: 0, Limit: 5})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one recalled entry")
	}
}

func TestSubsystem_RecallTextAdaptsToStringSlice(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubsystem()
	if err := sub.Store(ctx, entity.MemoryEntry{Content: "prefers dark mode in the editor", Tier: entity.MemorySemantic, Importance: 0.8}); err != nil {
		t.Fatalf("store: %v", err)
	}

	texts, err := sub.RecallText(ctx, "editor dark mode", 5)
	if err != nil {
		t.Fatalf("RecallText: %v", err)
	}
	if len(texts) == 0 {
		t.Fatalf("expected at least one recalled text")
	}
}

func TestSubsystem_RecordTurnExtractsFactsSkippingPrivacyTerms(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubsystem()

	if err := sub.RecordTurn(ctx, "session-1",
		"Remember that my name is Alex and I always prefer tabs over spaces. My password is hunter2.",
		"Got it, noted."); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}

	stats := sub.Stats(ctx)
	if stats.WorkingCount != 2 {
		t.Fatalf("expected 2 working entries (user + assistant), got %d", stats.WorkingCount)
	}
	if stats.SemanticCount == 0 {
		t.Fatalf("expected at least one extracted semantic fact")
	}

	texts, err := sub.RecallText(ctx, "tabs over spaces", 10)
	if err != nil {
		t.Fatalf("RecallText: %v", err)
	}
	for _, txt := range texts {
		if containsWord(txt, "hunter2") {
			t.Fatalf("privacy-veto sentence leaked into recall: %q", txt)
		}
	}
}

func TestSubsystem_SaveAndLoadFromDiskRoundTrips(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubsystem()
	if err := sub.Store(ctx, entity.MemoryEntry{Content: "the project uses a monorepo layout", Tier: entity.MemorySemantic, Importance: 0.8}); err != nil {
		t.Fatalf("store: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "memory.json")
	if err := sub.SaveToDisk(ctx, path); err != nil {
		t.Fatalf("SaveToDisk: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected snapshot file to exist: %v", err)
	}

	fresh := newTestSubsystem()
	count, err := fresh.LoadFromDisk(ctx, path)
	if err != nil {
		t.Fatalf("LoadFromDisk: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 restored entry, got %d", count)
	}
	if fresh.Stats(ctx).SemanticCount != 1 {
		t.Fatalf("expected restored entry to land back in the semantic tier")
	}
}

func TestSubsystem_LoadFromDiskMissingFileReturnsZero(t *testing.T) {
	sub := newTestSubsystem()
	count, err := sub.LoadFromDisk(context.Background(), filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("LoadFromDisk: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 for a missing snapshot file, got %d", count)
	}
}

func TestSubsystem_WorkingTierEvictsOldestBeyondCapacity(t *testing.T) {
	ctx := context.Background()
	sub := NewSubsystem(domainmemory.NewSimpleEmbedder(32), zap.NewNop())
	sub.WithTierStore(entity.MemoryWorking, domainmemory.NewInMemoryVectorStore(), 2)

	for i := 0; i < 3; i++ {
		if err := sub.Store(ctx, entity.MemoryEntry{Content: "message", Tier: entity.MemoryWorking, Importance: 0.6}); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
	}

	if got := sub.Stats(ctx).WorkingCount; got != 2 {
		t.Fatalf("expected working tier capped at 2 entries, got %d", got)
	}
}

func containsWord(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
