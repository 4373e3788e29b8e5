package repository

import (
	"context"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// CheckpointStore is the §4.B contract: a durable, thread-scoped append log
// of agent state snapshots. Implementations: SQLite-backed and in-memory.
type CheckpointStore interface {
	// Save appends a Checkpoint to its thread's timeline.
	Save(ctx context.Context, cp *entity.Checkpoint) error

	// LoadLatest returns the newest checkpoint for a thread, or nil if none exists.
	LoadLatest(ctx context.Context, threadID string) (*entity.Checkpoint, error)

	// LoadByID returns a single checkpoint by id, or nil if not found.
	LoadByID(ctx context.Context, id string) (*entity.Checkpoint, error)

	// List returns every checkpoint summary for a thread, sorted newest-first.
	List(ctx context.Context, threadID string) ([]entity.CheckpointSummary, error)

	// Delete removes one checkpoint, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// DeleteThread removes every checkpoint for a thread, returning the count removed.
	DeleteThread(ctx context.Context, threadID string) (uint32, error)
}
