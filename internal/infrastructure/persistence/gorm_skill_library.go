package persistence

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/repository"
	"github.com/ngoclaw/goosecore/internal/infrastructure/persistence/models"
	domainErrors "github.com/ngoclaw/goosecore/pkg/errors"
)

// GormSkillLibrary is the SQLite/Postgres-backed SkillLibrary (§4.D).
type GormSkillLibrary struct {
	db *gorm.DB
}

// NewGormSkillLibrary creates a GORM-backed SkillLibrary.
func NewGormSkillLibrary(db *gorm.DB) repository.SkillLibrary {
	return &GormSkillLibrary{db: db}
}

func (s *GormSkillLibrary) Store(ctx context.Context, skill *entity.Skill) error {
	patterns, err := json.Marshal(skill.Patterns())
	if err != nil {
		return domainErrors.NewInternalErrorWithCause("marshal skill patterns", err)
	}
	steps, err := json.Marshal(skill.Steps())
	if err != nil {
		return domainErrors.NewInternalErrorWithCause("marshal skill steps", err)
	}
	model := models.SkillModel{
		ID:              skill.ID(),
		Name:            skill.Name(),
		Description:     skill.Description(),
		RecommendedCore: string(skill.RecommendedCore()),
		Patterns:        string(patterns),
		Steps:           string(steps),
		Verified:        skill.Verified(),
		UseCount:        skill.UseCount(),
		AttemptCount:    skill.AttemptCount(),
		SuccessRate:     skill.SuccessRate(),
	}
	if err := s.db.WithContext(ctx).Save(&model).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("store skill", err)
	}
	return nil
}

// FindForTask matches case-insensitively against each skill's patterns and
// ranks by (verified desc, success_rate desc, use_count desc), per §4.D.
func (s *GormSkillLibrary) FindForTask(ctx context.Context, task string, limit int) ([]*entity.Skill, error) {
	var rows []models.SkillModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("scan skills", err)
	}

	lowerTask := strings.ToLower(task)
	matched := make([]*entity.Skill, 0)
	for _, m := range rows {
		skill, err := toSkill(&m)
		if err != nil {
			return nil, err
		}
		if skill.MatchesTask(lowerTask) {
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

func (s *GormSkillLibrary) VerifiedSkills(ctx context.Context) ([]*entity.Skill, error) {
	var rows []models.SkillModel
	if err := s.db.WithContext(ctx).Where("verified = ?", true).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("scan verified skills", err)
	}
	out := make([]*entity.Skill, 0, len(rows))
	for _, m := range rows {
		skill, err := toSkill(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, skill)
	}
	return out, nil
}

func (s *GormSkillLibrary) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.SkillModel{}).Count(&count).Error; err != nil {
		return 0, domainErrors.NewInternalErrorWithCause("count skills", err)
	}
	return count, nil
}

func toSkill(m *models.SkillModel) (*entity.Skill, error) {
	var patterns, steps []string
	if m.Patterns != "" {
		if err := json.Unmarshal([]byte(m.Patterns), &patterns); err != nil {
			return nil, domainErrors.NewInternalErrorWithCause("unmarshal skill patterns", err)
		}
	}
	if m.Steps != "" {
		if err := json.Unmarshal([]byte(m.Steps), &steps); err != nil {
			return nil, domainErrors.NewInternalErrorWithCause("unmarshal skill steps", err)
		}
	}
	skill, err := entity.NewSkillLibraryEntry(m.ID, m.Name, m.Description, entity.CoreType(m.RecommendedCore), patterns, steps)
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("reconstruct skill", err)
	}
	if m.Verified {
		skill.MarkVerified()
	}
	skill.Restore(m.UseCount, m.AttemptCount, m.SuccessRate)
	return skill, nil
}
