package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	LearningStatusNotStarted = "not_started"
	LearningStatusInProgress = "in_progress"
	LearningStatusCompleted  = "completed"
)

// RoadmapProgress is one row per roadmap. CompletedNodes holds task ids that
// always form a contiguous prefix of the roadmap's flattened task list; the
// derived fields are recomputed server-side on every write.
type RoadmapProgress struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RoadmapID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"roadmap_id"`
	CompletedNodes datatypes.JSON `gorm:"type:jsonb;column:completed_nodes" json:"completed_nodes"`
	CompletedCount int            `gorm:"column:completed_count;not null;default:0" json:"completed_count"`
	TotalNodes     int            `gorm:"column:total_nodes;not null;default:0" json:"total_nodes"`
	Percent        int            `gorm:"column:percent;not null;default:0" json:"percent"`
	LearningStatus string         `gorm:"column:learning_status;not null;default:'not_started'" json:"learning_status"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (RoadmapProgress) TableName() string { return "roadmap_progress" }
