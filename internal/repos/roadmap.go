package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/types"
)

type RoadmapRepo interface {
	Create(ctx context.Context, tx *gorm.DB, roadmap *types.Roadmap) (*types.Roadmap, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Roadmap, error)
	GetByIDForOwner(ctx context.Context, tx *gorm.DB, id, userID uuid.UUID) (*types.Roadmap, error)
	UpdateCapstoneStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error
}

type roadmapRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRoadmapRepo(db *gorm.DB, baseLog *logger.Logger) RoadmapRepo {
	return &roadmapRepo{
		db:  db,
		log: baseLog.With("repo", "RoadmapRepo"),
	}
}

func (r *roadmapRepo) Create(ctx context.Context, tx *gorm.DB, roadmap *types.Roadmap) (*types.Roadmap, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if roadmap == nil {
		return nil, nil
	}
	if roadmap.ID == uuid.Nil {
		roadmap.ID = uuid.New()
	}
	if roadmap.CapstoneStatus == "" {
		roadmap.CapstoneStatus = types.CapstoneStatusNotStarted
	}
	if err := transaction.WithContext(ctx).Create(roadmap).Error; err != nil {
		return nil, err
	}
	return roadmap, nil
}

func (r *roadmapRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Roadmap, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var roadmap types.Roadmap
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&roadmap).Error
	if err != nil {
		return nil, err
	}
	if roadmap.ID == uuid.Nil {
		return nil, nil
	}
	return &roadmap, nil
}

func (r *roadmapRepo) GetByIDForOwner(ctx context.Context, tx *gorm.DB, id, userID uuid.UUID) (*types.Roadmap, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || userID == uuid.Nil {
		return nil, nil
	}
	var roadmap types.Roadmap
	err := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Limit(1).
		Find(&roadmap).Error
	if err != nil {
		return nil, err
	}
	if roadmap.ID == uuid.Nil {
		return nil, nil
	}
	return &roadmap, nil
}

func (r *roadmapRepo) UpdateCapstoneStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Roadmap{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"capstone_status": status,
			"updated_at":      time.Now(),
		}).Error
}
