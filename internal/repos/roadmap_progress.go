package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/types"
)

type RoadmapProgressRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.RoadmapProgress) (*types.RoadmapProgress, error)
	GetByRoadmapID(ctx context.Context, tx *gorm.DB, roadmapID uuid.UUID) (*types.RoadmapProgress, error)
	Save(ctx context.Context, tx *gorm.DB, row *types.RoadmapProgress) error
}

type roadmapProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRoadmapProgressRepo(db *gorm.DB, baseLog *logger.Logger) RoadmapProgressRepo {
	return &roadmapProgressRepo{
		db:  db,
		log: baseLog.With("repo", "RoadmapProgressRepo"),
	}
}

func (r *roadmapProgressRepo) Create(ctx context.Context, tx *gorm.DB, row *types.RoadmapProgress) (*types.RoadmapProgress, error) {
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
	if row.LearningStatus == "" {
		row.LearningStatus = types.LearningStatusNotStarted
	}
	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *roadmapProgressRepo) GetByRoadmapID(ctx context.Context, tx *gorm.DB, roadmapID uuid.UUID) (*types.RoadmapProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if roadmapID == uuid.Nil {
		return nil, nil
	}
	var row types.RoadmapProgress
	err := transaction.WithContext(ctx).
		Where("roadmap_id = ?", roadmapID).
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

func (r *roadmapProgressRepo) Save(ctx context.Context, tx *gorm.DB, row *types.RoadmapProgress) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil || row.ID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).Save(row).Error
}
