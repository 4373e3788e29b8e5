package persistence

import (
	"context"
	"encoding/json"
	"math"

	"gorm.io/gorm"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/repository"
	"github.com/ngoclaw/goosecore/internal/infrastructure/persistence/models"
	domainErrors "github.com/ngoclaw/goosecore/pkg/errors"
)

// GormExperienceStore is the SQLite/Postgres-backed ExperienceStore (§4.C).
type GormExperienceStore struct {
	db *gorm.DB
}

// NewGormExperienceStore creates a GORM-backed ExperienceStore.
func NewGormExperienceStore(db *gorm.DB) repository.ExperienceStore {
	return &GormExperienceStore{db: db}
}

func (s *GormExperienceStore) Store(ctx context.Context, exp entity.Experience) error {
	insights, err := json.Marshal(exp.Insights)
	if err != nil {
		return domainErrors.NewInternalErrorWithCause("marshal experience insights", err)
	}
	model := models.ExperienceModel{
		Task:        exp.Task,
		CoreType:    string(exp.CoreType),
		Succeeded:   exp.Succeeded,
		TurnsUsed:   exp.TurnsUsed,
		CostDollars: exp.CostDollars,
		TimeMs:      exp.TimeMs,
		Category:    exp.Category,
		Insights:    string(insights),
		CreatedAt:   exp.CreatedAt,
	}
	// Append-only: always Create, never Save/Update, per §4.C durability contract.
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("store experience", err)
	}
	return nil
}

func (s *GormExperienceStore) Recent(ctx context.Context, limit int) ([]entity.Experience, error) {
	var rows []models.ExperienceModel
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("list recent experiences", err)
	}
	return toExperiences(rows)
}

func (s *GormExperienceStore) ByCore(ctx context.Context, coreType entity.CoreType, limit int) ([]entity.Experience, error) {
	var rows []models.ExperienceModel
	q := s.db.WithContext(ctx).Where("core_type = ?", string(coreType)).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("list experiences by core", err)
	}
	return toExperiences(rows)
}

func (s *GormExperienceStore) ByCategory(ctx context.Context, category string, limit int) ([]entity.Experience, error) {
	var rows []models.ExperienceModel
	q := s.db.WithContext(ctx).Where("category = ?", category).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("list experiences by category", err)
	}
	return toExperiences(rows)
}

// GetCoreStats derives the (core_type, category) aggregate view directly
// from the append log — a derived view, not a separately maintained table.
func (s *GormExperienceStore) GetCoreStats(ctx context.Context) ([]entity.CoreStats, error) {
	var rows []models.ExperienceModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("scan experiences for stats", err)
	}

	type key struct {
		core     string
		category string
	}
	type agg struct {
		total       int
		successes   int
		sumTurns    float64
		sumCost     float64
		sumTimeMs   float64
	}
	buckets := make(map[key]*agg)
	order := make([]key, 0)
	for _, r := range rows {
		k := key{core: r.CoreType, category: r.Category}
		a, ok := buckets[k]
		if !ok {
			a = &agg{}
			buckets[k] = a
			order = append(order, k)
		}
		a.total++
		if r.Succeeded {
			a.successes++
		}
		a.sumTurns += float64(r.TurnsUsed)
		a.sumCost += r.CostDollars
		a.sumTimeMs += float64(r.TimeMs)
	}

	out := make([]entity.CoreStats, 0, len(order))
	for _, k := range order {
		a := buckets[k]
		n := math.Max(1, float64(a.total))
		out = append(out, entity.CoreStats{
			CoreType:        entity.CoreType(k.core),
			Category:        k.category,
			TotalExecutions: a.total,
			SuccessRate:     float64(a.successes) / n,
			AvgTurns:        a.sumTurns / n,
			AvgCost:         a.sumCost / n,
			AvgTimeMs:       a.sumTimeMs / n,
		})
	}
	return out, nil
}

func (s *GormExperienceStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ExperienceModel{}).Count(&count).Error; err != nil {
		return 0, domainErrors.NewInternalErrorWithCause("count experiences", err)
	}
	return count, nil
}

func toExperiences(rows []models.ExperienceModel) ([]entity.Experience, error) {
	out := make([]entity.Experience, 0, len(rows))
	for _, r := range rows {
		var insights []string
		if r.Insights != "" {
			if err := json.Unmarshal([]byte(r.Insights), &insights); err != nil {
				return nil, domainErrors.NewInternalErrorWithCause("unmarshal experience insights", err)
			}
		}
		out = append(out, entity.Experience{
			Task:        r.Task,
			CoreType:    entity.CoreType(r.CoreType),
			Succeeded:   r.Succeeded,
			TurnsUsed:   r.TurnsUsed,
			CostDollars: r.CostDollars,
			TimeMs:      r.TimeMs,
			Category:    r.Category,
			Insights:    insights,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}
