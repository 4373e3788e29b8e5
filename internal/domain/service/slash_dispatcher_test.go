package service

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/core"
	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

func newRegistryWithStubCores(logger *zap.Logger) *core.Registry {
	registry := core.NewRegistry(logger)
	registry.Register(entity.CoreFreeform, core.NewFreeformCore())
	registry.Register(entity.CoreStructured, &stubCore{output: &entity.CoreOutput{Completed: true, Summary: "ok"}})
	return registry
}

func TestParseSlashCommand_SplitsNameAndArgs(t *testing.T) {
	cmd := ParseSlashCommand("/core structured")
	if cmd == nil || cmd.Name != "core" || len(cmd.Args) != 1 || cmd.Args[0] != "structured" {
		t.Fatalf("unexpected parse result: %+v", cmd)
	}
}

func TestParseSlashCommand_NonCommandReturnsNil(t *testing.T) {
	if cmd := ParseSlashCommand("just a normal message"); cmd != nil {
		t.Fatalf("expected nil for non-slash text, got %+v", cmd)
	}
}

func TestParseSlashCommand_NormalizesCompactTriggers(t *testing.T) {
	for _, text := range []string{"/summarize", "Please compact this conversation"} {
		cmd := ParseSlashCommand(text)
		if cmd == nil || cmd.Name != "compact" {
			t.Fatalf("expected %q to normalize to /compact, got %+v", text, cmd)
		}
	}
}

func TestSlashCommandDispatcher_CoresListsAndSwitches(t *testing.T) {
	logger := zap.NewNop()
	registry := newRegistryWithStubCores(logger)
	dispatcher := NewSlashCommandDispatcher(registry, nil, nil, nil, nil, nil, nil, nil, nil)

	reply, err := dispatcher.Dispatch(context.Background(), "/cores")
	if err != nil || reply == nil || !strings.Contains(reply.Text(), "freeform") {
		t.Fatalf("expected /cores to list registered cores, got %+v err=%v", reply, err)
	}

	reply, err = dispatcher.Dispatch(context.Background(), "/core structured")
	if err != nil || reply == nil || !strings.Contains(reply.Text(), "Switched active core to structured") {
		t.Fatalf("expected /core to switch, got %+v err=%v", reply, err)
	}
	if registry.ActiveCoreType() != entity.CoreStructured {
		t.Fatalf("expected active core to be structured, got %s", registry.ActiveCoreType())
	}
}

func TestSlashCommandDispatcher_CoreSwitchRejectsUnknownName(t *testing.T) {
	logger := zap.NewNop()
	registry := newRegistryWithStubCores(logger)
	dispatcher := NewSlashCommandDispatcher(registry, nil, nil, nil, nil, nil, nil, nil, nil)

	reply, err := dispatcher.Dispatch(context.Background(), "/core not-a-real-core")
	if err != nil || reply == nil || !strings.Contains(reply.Text(), "Unknown core") {
		t.Fatalf("expected an unknown-core message, got %+v err=%v", reply, err)
	}
}

func TestSlashCommandDispatcher_ExperienceStats(t *testing.T) {
	logger := zap.NewNop()
	registry := newRegistryWithStubCores(logger)
	experience := &fakeExperienceStore{
		stats: []entity.CoreStats{{CoreType: entity.CoreFreeform, Category: "general", TotalExecutions: 4, SuccessRate: 0.75}},
	}
	dispatcher := NewSlashCommandDispatcher(registry, experience, nil, nil, nil, nil, nil, nil, nil)

	reply, err := dispatcher.Dispatch(context.Background(), "/experience stats")
	if err != nil || reply == nil || !strings.Contains(reply.Text(), "freeform/general") {
		t.Fatalf("expected experience stats in the reply, got %+v err=%v", reply, err)
	}
}

func TestSlashCommandDispatcher_RecipeFallbackRequiresParams(t *testing.T) {
	logger := zap.NewNop()
	registry := newRegistryWithStubCores(logger)
	dispatcher := NewSlashCommandDispatcher(registry, nil, nil, nil, nil, nil, nil, nil, nil)
	dispatcher.RegisterRecipe(Recipe{
		Name:           "review-pr",
		RequiredParams: []string{"repo", "number"},
		PromptTemplate: func(args []string) string { return "review " + strings.Join(args, " ") },
	})

	if _, err := dispatcher.Dispatch(context.Background(), "/review-pr"); err == nil {
		t.Fatalf("expected a usage error when required recipe params are missing")
	}

	reply, err := dispatcher.Dispatch(context.Background(), "/review-pr goosecore 42")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply == nil || reply.Text() != "review goosecore 42" {
		t.Fatalf("expected the resolved recipe prompt, got %+v", reply)
	}
}

func TestSlashCommandDispatcher_UnknownNameNotConsumed(t *testing.T) {
	logger := zap.NewNop()
	registry := newRegistryWithStubCores(logger)
	dispatcher := NewSlashCommandDispatcher(registry, nil, nil, nil, nil, nil, nil, nil, nil)

	reply, err := dispatcher.Dispatch(context.Background(), "/totally-unknown-command")
	if err != nil || reply != nil {
		t.Fatalf("expected an unrecognized command to fall through uncomsumed, got %+v err=%v", reply, err)
	}
}

func TestSlashCommandDispatcher_PlainTextNotConsumed(t *testing.T) {
	logger := zap.NewNop()
	registry := newRegistryWithStubCores(logger)
	dispatcher := NewSlashCommandDispatcher(registry, nil, nil, nil, nil, nil, nil, nil, nil)

	reply, err := dispatcher.Dispatch(context.Background(), "what is the weather today")
	if err != nil || reply != nil {
		t.Fatalf("expected plain text to be untouched, got %+v err=%v", reply, err)
	}
}
