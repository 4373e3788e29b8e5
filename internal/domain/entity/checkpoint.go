package entity

import "time"

// CheckpointMetadata carries the label/step/state-name triple plus the
// auto-checkpoint flag and free-form tags used to filter checkpoint listings.
type CheckpointMetadata struct {
	Label     string   `json:"label,omitempty"`
	Step      *int     `json:"step,omitempty"`
	StateName string   `json:"state_name,omitempty"`
	Auto      bool     `json:"auto"`
	Tags      []string `json:"tags,omitempty"`
}

// Checkpoint is a durable, thread-scoped snapshot of opaque agent state.
// Checkpoints within a thread are totally ordered by CreatedAt.
type Checkpoint struct {
	CheckpointID string             `json:"checkpoint_id"`
	ThreadID     string             `json:"thread_id"`
	State        []byte             `json:"state"`
	Metadata     CheckpointMetadata `json:"metadata"`
	CreatedAt    time.Time          `json:"created_at"`
}

// CheckpointSummary is the lightweight row returned by CheckpointStore.List,
// omitting the (potentially large) opaque State payload.
type CheckpointSummary struct {
	CheckpointID string             `json:"checkpoint_id"`
	ThreadID     string             `json:"thread_id"`
	Metadata     CheckpointMetadata `json:"metadata"`
	CreatedAt    time.Time          `json:"created_at"`
	SizeBytes    int                `json:"size_bytes"`
}

// Summarize drops the State payload, keeping just what List() needs.
func (c *Checkpoint) Summarize() CheckpointSummary {
	return CheckpointSummary{
		CheckpointID: c.CheckpointID,
		ThreadID:     c.ThreadID,
		Metadata:     c.Metadata,
		CreatedAt:    c.CreatedAt,
		SizeBytes:    len(c.State),
	}
}
