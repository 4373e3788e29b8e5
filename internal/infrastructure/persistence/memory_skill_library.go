package persistence

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/repository"
)

// MemorySkillLibrary is the in-memory SkillLibrary variant (§4.D).
type MemorySkillLibrary struct {
	mu     sync.RWMutex
	skills map[string]*entity.Skill
}

// NewMemorySkillLibrary creates an in-memory SkillLibrary.
func NewMemorySkillLibrary() repository.SkillLibrary {
	return &MemorySkillLibrary{skills: make(map[string]*entity.Skill)}
}

func (s *MemorySkillLibrary) Store(ctx context.Context, skill *entity.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[skill.ID()] = skill
	return nil
}

func (s *MemorySkillLibrary) FindForTask(ctx context.Context, task string, limit int) ([]*entity.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(task)
	matched := make([]*entity.Skill, 0)
	for _, skill := range s.skills {
		if skill.MatchesTask(lower) {
			matched = append(matched, skill)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Verified() != b.Verified() {
			return a.Verified()
		}
		if a.SuccessRate() != b.SuccessRate() {
			return a.SuccessRate() > b.SuccessRate()
		}
		return a.UseCount() > b.UseCount()
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemorySkillLibrary) VerifiedSkills(ctx context.Context) ([]*entity.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.Skill, 0)
	for _, skill := range s.skills {
		if skill.Verified() {
			out = append(out, skill)
		}
	}
	return out, nil
}

func (s *MemorySkillLibrary) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.skills)), nil
}
