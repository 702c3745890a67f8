package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	VerdictPass    = "pass"
	VerdictPartial = "partial"
	VerdictFail    = "fail"
)

// RequirementResult is the reviewer's verdict for one declared requirement.
type RequirementResult struct {
	Requirement string `json:"requirement"`
	Met         bool   `json:"met"`
	Feedback    string `json:"feedback,omitempty"`
}

// CapstoneSubmission is one review attempt. Rows are append-only: history is
// never mutated or deleted, the roadmap's capstone status is derived from it.
type CapstoneSubmission struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RoadmapID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"roadmap_id"`
	UserID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	GithubURL          string         `gorm:"column:github_url;not null" json:"github_url"`
	Verdict            string         `gorm:"column:verdict;not null" json:"verdict"` // pass|partial|fail
	Score              int            `gorm:"column:score;not null;default:0" json:"score"`
	RequirementResults datatypes.JSON `gorm:"type:jsonb;column:requirement_results" json:"requirement_results"`
	Strengths          datatypes.JSON `gorm:"type:jsonb;column:strengths" json:"strengths"`
	Improvements       datatypes.JSON `gorm:"type:jsonb;column:improvements" json:"improvements"`
	OverallFeedback    string         `gorm:"column:overall_feedback" json:"overall_feedback"`
	SubmittedAt        time.Time      `gorm:"not null;default:now();index" json:"submitted_at"`
	CreatedAt          time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CapstoneSubmission) TableName() string { return "capstone_submission" }
