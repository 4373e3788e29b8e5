package eventbus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// DefaultAgentEventCapacity is the bounded ring capacity for the agent-event
// SessionEventBus (§4.A: "default 4096 for agent events, 256 for settings").
const DefaultAgentEventCapacity = 4096

// DefaultSettingsEventCapacity is the bounded ring capacity for a
// settings-event SessionEventBus.
const DefaultSettingsEventCapacity = 256

// Lagged is the error signaled to a subscriber that fell more than the
// ring's capacity behind: count is how many frames it missed. The
// subscriber is resumed at the newest frame; no frame is re-sent.
type Lagged struct {
	Count int
}

func (l *Lagged) Error() string {
	return "subscriber lagged behind by frames"
}

// Receiver is what Subscribe returns: a channel of delivered frames plus a
// channel that receives a Lagged notice whenever this subscriber is skipped
// ahead. Both channels are closed together when the subscriber is dropped
// via Unsubscribe or the bus is Closed.
type Receiver struct {
	Frames <-chan entity.CoreFrame
	Lagged <-chan Lagged

	id     uint64
	bus    *SessionEventBus
}

// Unsubscribe detaches this receiver from the bus. Safe to call more than once.
func (r *Receiver) Unsubscribe() {
	r.bus.unsubscribe(r.id)
}

// SessionEventBus is the one-per-session, multi-producer/multi-subscriber
// broadcast described in §4.A: a bounded ring of capacity N per subscriber,
// with lag detection rather than blocking slow readers.
type SessionEventBus struct {
	mu       sync.Mutex
	capacity int
	nextID   uint64
	subs     map[uint64]*subscriber
	closed   bool
	logger   *zap.Logger
}

type subscriber struct {
	frames chan entity.CoreFrame
	lagged chan Lagged
}

// NewSessionEventBus creates a bus with the given per-subscriber ring capacity.
func NewSessionEventBus(capacity int, logger *zap.Logger) *SessionEventBus {
	if capacity <= 0 {
		capacity = DefaultAgentEventCapacity
	}
	return &SessionEventBus{
		capacity: capacity,
		subs:     make(map[uint64]*subscriber),
		logger:   logger,
	}
}

// Subscribe registers a new receiver. Each subscriber sees frames in publish
// order; there is no cross-subscriber ordering guarantee beyond that (§4.A).
func (b *SessionEventBus) Subscribe() *Receiver {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{
		frames: make(chan entity.CoreFrame, b.capacity),
		lagged: make(chan Lagged, 1),
	}
	b.subs[id] = sub

	return &Receiver{Frames: sub.frames, Lagged: sub.lagged, id: id, bus: b}
}

func (b *SessionEventBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.frames)
	close(sub.lagged)
}

// Publish broadcasts frame to every subscriber. It returns false iff there
// are no subscribers — per §4.A this is NOT an error, just a signal the
// frame had no audience.
//
// A subscriber that cannot keep up (its ring is full) is dropped to newest:
// publish pops the subscriber's oldest buffered frame to make room, pushes
// frame, and raises Lagged(1) for that drop — repeated drops accumulate into
// a coalesced Lagged count the subscriber reads on its next receive.
func (b *SessionEventBus) Publish(frame entity.CoreFrame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || len(b.subs) == 0 {
		return false
	}

	for _, sub := range b.subs {
		b.deliverLocked(sub, frame)
	}
	return true
}

func (b *SessionEventBus) deliverLocked(sub *subscriber, frame entity.CoreFrame) {
	select {
	case sub.frames <- frame:
		return
	default:
	}

	// Ring full: drop the oldest frame to resume at newest, and signal Lagged.
	dropped := 0
	for {
		select {
		case <-sub.frames:
			dropped++
		default:
			goto drained
		}
	}
drained:
	select {
	case sub.frames <- frame:
	default:
		// Extremely unlikely race (concurrent consumer drained it first);
		// nothing to deliver this cycle.
	}
	if dropped > 0 {
		select {
		case sub.lagged <- Lagged{Count: dropped}:
		default:
			// A Lagged notice is already pending; coalesce by draining and
			// re-sending the summed count.
			select {
			case prev := <-sub.lagged:
				select {
				case sub.lagged <- Lagged{Count: prev.Count + dropped}:
				default:
				}
			default:
			}
		}
	}
}

// SubscriberCount reports the current subscriber count (for diagnostics).
func (b *SessionEventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close detaches every subscriber and marks the bus closed; further
// Publish calls return false.
func (b *SessionEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.frames)
		close(sub.lagged)
		delete(b.subs, id)
	}
	if b.logger != nil {
		b.logger.Info("session event bus closed")
	}
}
