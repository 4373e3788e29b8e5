package eventbus

import (
	"testing"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

func TestPublishReturnsFalseWithNoSubscribers(t *testing.T) {
	bus := NewSessionEventBus(4, zap.NewNop())
	if bus.Publish(entity.NewModelChangeFrame("gpt", entity.ModelRoleLead)) {
		t.Fatal("expected publish with no subscribers to return false")
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewSessionEventBus(4, zap.NewNop())
	recv := bus.Subscribe()

	bus.Publish(entity.NewModelChangeFrame("a", entity.ModelRoleLead))
	bus.Publish(entity.NewModelChangeFrame("b", entity.ModelRoleWorker))

	first := <-recv.Frames
	second := <-recv.Frames
	if first.Model != "a" || second.Model != "b" {
		t.Fatalf("expected in-order delivery, got %q then %q", first.Model, second.Model)
	}
}

func TestSlowSubscriberLagsInsteadOfBlocking(t *testing.T) {
	bus := NewSessionEventBus(2, zap.NewNop())
	recv := bus.Subscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(entity.NewModelChangeFrame("x", entity.ModelRoleLead))
	}

	select {
	case <-recv.Lagged:
	default:
		t.Fatal("expected a Lagged signal after overflowing the ring")
	}

	// Resumed at newest: draining the ring should not block.
	drained := 0
	for {
		select {
		case <-recv.Frames:
			drained++
		default:
			goto done
		}
	}
done:
	if drained == 0 {
		t.Fatal("expected at least the newest frame to still be deliverable")
	}
}

func TestUnsubscribeClosesChannels(t *testing.T) {
	bus := NewSessionEventBus(4, zap.NewNop())
	recv := bus.Subscribe()
	recv.Unsubscribe()

	if _, ok := <-recv.Frames; ok {
		t.Fatal("expected frames channel to be closed after unsubscribe")
	}
}
