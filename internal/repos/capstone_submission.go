package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/types"
)

// CapstoneSubmissionRepo is append-only: submission history is never mutated
// or deleted, so there are no update or delete operations.
type CapstoneSubmissionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.CapstoneSubmission) (*types.CapstoneSubmission, error)
	GetByRoadmapID(ctx context.Context, tx *gorm.DB, roadmapID uuid.UUID) ([]*types.CapstoneSubmission, error)
	GetLatestByRoadmapID(ctx context.Context, tx *gorm.DB, roadmapID uuid.UUID) (*types.CapstoneSubmission, error)
}

type capstoneSubmissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCapstoneSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) CapstoneSubmissionRepo {
	return &capstoneSubmissionRepo{
		db:  db,
		log: baseLog.With("repo", "CapstoneSubmissionRepo"),
	}
}

func (r *capstoneSubmissionRepo) Create(ctx context.Context, tx *gorm.DB, row *types.CapstoneSubmission) (*types.CapstoneSubmission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *capstoneSubmissionRepo) GetByRoadmapID(ctx context.Context, tx *gorm.DB, roadmapID uuid.UUID) ([]*types.CapstoneSubmission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.CapstoneSubmission
	if roadmapID == uuid.Nil {
		return rows, nil
	}
	if err := transaction.WithContext(ctx).
		Where("roadmap_id = ?", roadmapID).
		Order("submitted_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *capstoneSubmissionRepo) GetLatestByRoadmapID(ctx context.Context, tx *gorm.DB, roadmapID uuid.UUID) (*types.CapstoneSubmission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if roadmapID == uuid.Nil {
		return nil, nil
	}
	var row types.CapstoneSubmission
	err := transaction.WithContext(ctx).
		Where("roadmap_id = ?", roadmapID).
		Order("submitted_at DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}
