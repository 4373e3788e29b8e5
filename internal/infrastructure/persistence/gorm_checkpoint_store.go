package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/repository"
	"github.com/ngoclaw/goosecore/internal/infrastructure/persistence/models"
	domainErrors "github.com/ngoclaw/goosecore/pkg/errors"
)

// GormCheckpointStore is the SQLite/Postgres-backed CheckpointStore (§4.B).
type GormCheckpointStore struct {
	db *gorm.DB
}

// NewGormCheckpointStore creates a GORM-backed CheckpointStore.
func NewGormCheckpointStore(db *gorm.DB) repository.CheckpointStore {
	return &GormCheckpointStore{db: db}
}

func (s *GormCheckpointStore) Save(ctx context.Context, cp *entity.Checkpoint) error {
	tags, err := json.Marshal(cp.Metadata.Tags)
	if err != nil {
		return domainErrors.NewInternalErrorWithCause("marshal checkpoint tags", err)
	}
	model := models.CheckpointModel{
		CheckpointID: cp.CheckpointID,
		ThreadID:     cp.ThreadID,
		State:        cp.State,
		Label:        cp.Metadata.Label,
		Step:         cp.Metadata.Step,
		StateName:    cp.Metadata.StateName,
		Auto:         cp.Metadata.Auto,
		Tags:         string(tags),
		CreatedAt:    cp.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Save(&model).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("save checkpoint", err)
	}
	return nil
}

func (s *GormCheckpointStore) LoadLatest(ctx context.Context, threadID string) (*entity.Checkpoint, error) {
	var model models.CheckpointModel
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("load latest checkpoint", err)
	}
	return toCheckpoint(&model)
}

func (s *GormCheckpointStore) LoadByID(ctx context.Context, id string) (*entity.Checkpoint, error) {
	var model models.CheckpointModel
	err := s.db.WithContext(ctx).First(&model, "checkpoint_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("load checkpoint by id", err)
	}
	return toCheckpoint(&model)
}

func (s *GormCheckpointStore) List(ctx context.Context, threadID string) ([]entity.CheckpointSummary, error) {
	var rows []models.CheckpointModel
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("list checkpoints", err)
	}
	out := make([]entity.CheckpointSummary, 0, len(rows))
	for _, m := range rows {
		cp, err := toCheckpoint(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, cp.Summarize())
	}
	return out, nil
}

func (s *GormCheckpointStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&models.CheckpointModel{}, "checkpoint_id = ?", id)
	if res.Error != nil {
		return false, domainErrors.NewInternalErrorWithCause("delete checkpoint", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormCheckpointStore) DeleteThread(ctx context.Context, threadID string) (uint32, error) {
	res := s.db.WithContext(ctx).Delete(&models.CheckpointModel{}, "thread_id = ?", threadID)
	if res.Error != nil {
		return 0, domainErrors.NewInternalErrorWithCause("delete thread checkpoints", res.Error)
	}
	return uint32(res.RowsAffected), nil
}

func toCheckpoint(m *models.CheckpointModel) (*entity.Checkpoint, error) {
	var tags []string
	if m.Tags != "" {
		if err := json.Unmarshal([]byte(m.Tags), &tags); err != nil {
			return nil, domainErrors.NewInternalErrorWithCause("unmarshal checkpoint tags", err)
		}
	}
	return &entity.Checkpoint{
		CheckpointID: m.CheckpointID,
		ThreadID:     m.ThreadID,
		State:        m.State,
		Metadata: entity.CheckpointMetadata{
			Label:     m.Label,
			Step:      m.Step,
			StateName: m.StateName,
			Auto:      m.Auto,
			Tags:      tags,
		},
		CreatedAt: m.CreatedAt,
	}, nil
}
