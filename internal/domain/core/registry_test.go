package core

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

func TestRegistry_DefaultsToFreeform(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(entity.CoreFreeform, NewFreeformCore())

	if r.ActiveCoreType() != entity.CoreFreeform {
		t.Fatalf("expected freeform to be active by default, got %s", r.ActiveCoreType())
	}
}

func TestRegistry_ListCoresReportsRegistrationStatus(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(entity.CoreFreeform, NewFreeformCore())
	r.Register(entity.CoreStructured, NewStructuredCore(3))

	listing := r.ListCores()
	if len(listing) != len(entity.AllCoreTypes()) {
		t.Fatalf("expected a listing row per core type, got %d", len(listing))
	}

	var sawFreeform, sawSwarm bool
	for _, l := range listing {
		if l.Type == entity.CoreFreeform {
			sawFreeform = l.Registered
		}
		if l.Type == entity.CoreSwarm {
			sawSwarm = l.Registered
		}
	}
	if !sawFreeform {
		t.Fatal("expected freeform to be reported registered")
	}
	if sawSwarm {
		t.Fatal("expected swarm to be reported unregistered")
	}
}

func TestRegistry_SwitchCore(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(entity.CoreFreeform, NewFreeformCore())
	r.Register(entity.CoreStructured, NewStructuredCore(3))

	c, err := r.SwitchCore(entity.CoreStructured)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name() != string(entity.CoreStructured) {
		t.Fatalf("expected structured core returned, got %s", c.Name())
	}
	if r.ActiveCoreType() != entity.CoreStructured {
		t.Fatal("expected active type updated after switch")
	}
}

func TestRegistry_SwitchCoreRejectsUnregistered(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(entity.CoreFreeform, NewFreeformCore())

	if _, err := r.SwitchCore(entity.CoreAdversarial); err == nil {
		t.Fatal("expected an error switching to an unregistered core type")
	}
}

func TestFreeformCore_ExecuteReturnsExplanatoryError(t *testing.T) {
	c := NewFreeformCore()
	_, err := c.Execute(context.Background(), &AgentContext{}, "anything")
	if err == nil {
		t.Fatal("expected freeform core execute to return an error")
	}
}
