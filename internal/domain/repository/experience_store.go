package repository

import (
	"context"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// ExperienceStore is the §4.C contract: durable per-task execution records
// with aggregate statistics per execution strategy. Writes are append-only
// and MUST be durable before Store returns; stats queries are derived views.
type ExperienceStore interface {
	Store(ctx context.Context, exp entity.Experience) error
	Recent(ctx context.Context, limit int) ([]entity.Experience, error)
	ByCore(ctx context.Context, coreType entity.CoreType, limit int) ([]entity.Experience, error)
	ByCategory(ctx context.Context, category string, limit int) ([]entity.Experience, error)
	GetCoreStats(ctx context.Context) ([]entity.CoreStats, error)
	Count(ctx context.Context) (int64, error)
}
