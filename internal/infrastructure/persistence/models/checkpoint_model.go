package models

import "time"

// CheckpointModel is the durable row for one entity.Checkpoint.
type CheckpointModel struct {
	CheckpointID string `gorm:"primaryKey;size:64"`
	ThreadID     string `gorm:"index;size:64;not null"`
	State        []byte `gorm:"type:blob"`
	Label        string `gorm:"size:128"`
	Step         *int
	StateName    string `gorm:"size:64"`
	Auto         bool
	Tags         string `gorm:"type:text"` // JSON encoded []string
	CreatedAt    time.Time `gorm:"index"`
}

func (CheckpointModel) TableName() string { return "checkpoints" }

// ExperienceModel is the durable append-only row for one entity.Experience.
type ExperienceModel struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Task        string `gorm:"type:text"`
	CoreType    string `gorm:"index;size:32"`
	Succeeded   bool
	TurnsUsed   uint32
	CostDollars float64
	TimeMs      uint64
	Category    string `gorm:"index;size:64"`
	Insights    string `gorm:"type:text"` // JSON encoded []string
	CreatedAt   time.Time `gorm:"index"`
}

func (ExperienceModel) TableName() string { return "experiences" }

// SkillModel is the durable row for one entity.Skill as stored by the SkillLibrary.
type SkillModel struct {
	ID              string `gorm:"primaryKey;size:64"`
	Name            string `gorm:"size:128;not null"`
	Description     string `gorm:"type:text"`
	RecommendedCore string `gorm:"size:32"`
	Patterns        string `gorm:"type:text"` // JSON encoded []string
	Steps           string `gorm:"type:text"` // JSON encoded []string
	Verified        bool
	UseCount        uint32
	AttemptCount    uint32
	SuccessRate     float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (SkillModel) TableName() string { return "skills" }
