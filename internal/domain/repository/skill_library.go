package repository

import (
	"context"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// SkillLibrary is the §4.D contract: a durable library of pattern-matched
// reusable strategies with verification counts.
type SkillLibrary interface {
	Store(ctx context.Context, skill *entity.Skill) error

	// FindForTask matches case-insensitively against each skill's patterns,
	// ranks by (verified desc, success_rate desc, use_count desc), and
	// returns the top limit matches.
	FindForTask(ctx context.Context, task string, limit int) ([]*entity.Skill, error)

	VerifiedSkills(ctx context.Context) ([]*entity.Skill, error)
	Count(ctx context.Context) (int64, error)
}
