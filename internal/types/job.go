package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobKindChatMessage        = "chat_message"
	JobKindCoverLetter        = "cover_letter"
	JobKindRoadmap            = "roadmap"
	JobKindCapstoneSubmission = "capstone_submission"
)

const (
	JobStatusPending   = "pending"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Wire values for Job.FailureReason. Set only once a job settles failed.
const (
	FailureReasonRateLimited         = "rate_limited"
	FailureReasonInsufficientCredits = "insufficient_credits"
	FailureReasonProfileIncomplete   = "profile_incomplete"
	FailureReasonGeneric             = "generic_failure"
)

type Job struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Kind          string         `gorm:"column:kind;not null;index" json:"kind"`
	Status        string         `gorm:"column:status;not null;index" json:"status"` // pending|completed|failed
	ResultRef     string         `gorm:"column:result_ref" json:"result_ref,omitempty"`
	FailureReason string         `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	Input         datatypes.JSON `gorm:"type:jsonb;column:input" json:"input,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	SettledAt     *time.Time     `gorm:"column:settled_at" json:"settled_at,omitempty"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Job) TableName() string { return "job" }

// Terminal reports whether the job has settled. Terminal states are final.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

func ValidJobKind(kind string) bool {
	switch kind {
	case JobKindChatMessage, JobKindCoverLetter, JobKindRoadmap, JobKindCapstoneSubmission:
		return true
	}
	return false
}

func ValidFailureReason(reason string) bool {
	switch reason {
	case FailureReasonRateLimited, FailureReasonInsufficientCredits, FailureReasonProfileIncomplete, FailureReasonGeneric:
		return true
	}
	return false
}
