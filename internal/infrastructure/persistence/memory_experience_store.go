package persistence

import (
	"context"
	"math"
	"sync"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/repository"
)

// MemoryExperienceStore is the in-memory ExperienceStore variant (§4.C),
// used by tests and the Scenario D / P8 property tests.
type MemoryExperienceStore struct {
	mu   sync.RWMutex
	rows []entity.Experience
}

// NewMemoryExperienceStore creates an in-memory ExperienceStore.
func NewMemoryExperienceStore() repository.ExperienceStore {
	return &MemoryExperienceStore{}
}

func (s *MemoryExperienceStore) Store(ctx context.Context, exp entity.Experience) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, exp)
	return nil
}

func (s *MemoryExperienceStore) Recent(ctx context.Context, limit int) ([]entity.Experience, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Experience, len(s.rows))
	copy(out, s.rows)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryExperienceStore) ByCore(ctx context.Context, coreType entity.CoreType, limit int) ([]entity.Experience, error) {
	return s.filter(limit, func(e entity.Experience) bool { return e.CoreType == coreType })
}

func (s *MemoryExperienceStore) ByCategory(ctx context.Context, category string, limit int) ([]entity.Experience, error) {
	return s.filter(limit, func(e entity.Experience) bool { return e.Category == category })
}

func (s *MemoryExperienceStore) filter(limit int, pred func(entity.Experience) bool) ([]entity.Experience, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.Experience
	for i := len(s.rows) - 1; i >= 0; i-- {
		if pred(s.rows[i]) {
			out = append(out, s.rows[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryExperienceStore) GetCoreStats(ctx context.Context) ([]entity.CoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		core     entity.CoreType
		category string
	}
	type agg struct {
		total, successes      int
		sumTurns, sumCost, sumTime float64
	}
	buckets := make(map[key]*agg)
	order := make([]key, 0)
	for _, e := range s.rows {
		k := key{core: e.CoreType, category: e.Category}
		a, ok := buckets[k]
		if !ok {
			a = &agg{}
			buckets[k] = a
			order = append(order, k)
		}
		a.total++
		if e.Succeeded {
			a.successes++
		}
		a.sumTurns += float64(e.TurnsUsed)
		a.sumCost += e.CostDollars
		a.sumTime += float64(e.TimeMs)
	}

	out := make([]entity.CoreStats, 0, len(order))
	for _, k := range order {
		a := buckets[k]
		n := math.Max(1, float64(a.total))
		out = append(out, entity.CoreStats{
			CoreType:        k.core,
			Category:        k.category,
			TotalExecutions: a.total,
			SuccessRate:     float64(a.successes) / n,
			AvgTurns:        a.sumTurns / n,
			AvgCost:         a.sumCost / n,
			AvgTimeMs:       a.sumTime / n,
		})
	}
	return out, nil
}

func (s *MemoryExperienceStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows)), nil
}
