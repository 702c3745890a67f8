package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CapstoneStatusNotStarted = "not_started"
	CapstoneStatusSubmitted  = "submitted"
	CapstoneStatusPassed     = "passed"
	CapstoneStatusFailed     = "failed"
)

type Roadmap struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Title          string         `gorm:"column:title;not null" json:"title"`
	Content        datatypes.JSON `gorm:"type:jsonb;column:content" json:"content"`
	CapstoneStatus string         `gorm:"column:capstone_status;not null;default:'not_started'" json:"capstone_status"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Roadmap) TableName() string { return "roadmap" }

// RoadmapContent is the generated roadmap body stored in Roadmap.Content.
// Phases, milestones and tasks keep their generated order; that order defines
// the flattened task sequence progress is tracked against.
type RoadmapContent struct {
	Phases   []RoadmapPhase      `json:"phases"`
	Capstone *CapstoneDefinition `json:"capstone,omitempty"`
}

type RoadmapPhase struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Milestones []RoadmapMilestone `json:"milestones"`
}

type RoadmapMilestone struct {
	ID    string        `json:"id"`
	Title string        `json:"title"`
	Tasks []RoadmapTask `json:"tasks"`
}

type RoadmapTask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type CapstoneDefinition struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Requirements []string `json:"requirements"`
}

func (r *Roadmap) ParseContent() (*RoadmapContent, error) {
	var content RoadmapContent
	if len(r.Content) == 0 {
		return &content, nil
	}
	if err := json.Unmarshal(r.Content, &content); err != nil {
		return nil, err
	}
	return &content, nil
}
