package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/types"
)

type JobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.Job) (*types.Job, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Job, error)
	GetByIDForOwner(ctx context.Context, tx *gorm.DB, id, ownerUserID uuid.UUID) (*types.Job, error)
	// MarkCompleted settles a pending job. Calling it on an already-terminal
	// job is a no-op that returns the existing row unchanged with
	// transitioned=false; it never errors and never overwrites the result.
	MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, resultRef string) (job *types.Job, transitioned bool, err error)
	// MarkFailed settles a pending job with a failure reason. Same no-op
	// contract as MarkCompleted for already-terminal jobs.
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) (job *types.Job, transitioned bool, err error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.Job) (*types.Job, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil {
		return nil, nil
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = types.JobStatusPending
	}
	if err := transaction.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Job, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.Job
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRepo) GetByIDForOwner(ctx context.Context, tx *gorm.DB, id, ownerUserID uuid.UUID) (*types.Job, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || ownerUserID == uuid.Nil {
		return nil, nil
	}
	var job types.Job
	err := transaction.WithContext(ctx).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRepo) MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, resultRef string) (*types.Job, bool, error) {
	return r.settle(ctx, tx, id, map[string]interface{}{
		"status":     types.JobStatusCompleted,
		"result_ref": resultRef,
	})
}

func (r *jobRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) (*types.Job, bool, error) {
	if !types.ValidFailureReason(reason) {
		reason = types.FailureReasonGeneric
	}
	return r.settle(ctx, tx, id, map[string]interface{}{
		"status":         types.JobStatusFailed,
		"failure_reason": reason,
	})
}

// settle performs the single terminal transition. The status guard makes the
// update conditional on the row still being pending; 0 affected rows means the
// job is already terminal and the existing row is returned untouched.
func (r *jobRepo) settle(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (*types.Job, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, false, nil
	}
	now := time.Now()
	updates["settled_at"] = now
	updates["updated_at"] = now
	res := transaction.WithContext(ctx).
		Model(&types.Job{}).
		Where("id = ? AND status = ?", id, types.JobStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, false, res.Error
	}
	transitioned := res.RowsAffected > 0
	if !transitioned {
		r.log.Debug("Settle on non-pending job ignored", "job_id", id)
	}
	job, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	return job, transitioned, nil
}
