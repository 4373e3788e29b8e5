package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/repository"
)

// MemoryCheckpointStore is the in-memory CheckpointStore variant (§4.B).
type MemoryCheckpointStore struct {
	mu    sync.RWMutex
	byID  map[string]*entity.Checkpoint
	order map[string][]string // threadID -> checkpoint ids in insertion order
}

// NewMemoryCheckpointStore creates an in-memory CheckpointStore.
func NewMemoryCheckpointStore() repository.CheckpointStore {
	return &MemoryCheckpointStore{
		byID:  make(map[string]*entity.Checkpoint),
		order: make(map[string][]string),
	}
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, cp *entity.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[cp.CheckpointID]; !exists {
		s.order[cp.ThreadID] = append(s.order[cp.ThreadID], cp.CheckpointID)
	}
	clone := *cp
	s.byID[cp.CheckpointID] = &clone
	return nil
}

func (s *MemoryCheckpointStore) LoadLatest(ctx context.Context, threadID string) (*entity.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[threadID]
	if len(ids) == 0 {
		return nil, nil
	}
	var latest *entity.Checkpoint
	for _, id := range ids {
		cp := s.byID[id]
		if cp == nil {
			continue
		}
		if latest == nil || cp.CreatedAt.After(latest.CreatedAt) {
			latest = cp
		}
	}
	return latest, nil
}

func (s *MemoryCheckpointStore) LoadByID(ctx context.Context, id string) (*entity.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id], nil
}

func (s *MemoryCheckpointStore) List(ctx context.Context, threadID string) ([]entity.CheckpointSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[threadID]
	out := make([]entity.CheckpointSummary, 0, len(ids))
	for _, id := range ids {
		if cp := s.byID[id]; cp != nil {
			out = append(out, cp.Summarize())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryCheckpointStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	delete(s.byID, id)
	ids := s.order[cp.ThreadID]
	for i, existing := range ids {
		if existing == id {
			s.order[cp.ThreadID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryCheckpointStore) DeleteThread(ctx context.Context, threadID string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.order[threadID]
	for _, id := range ids {
		delete(s.byID, id)
	}
	delete(s.order, threadID)
	return uint32(len(ids)), nil
}
