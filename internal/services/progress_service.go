package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/repos"
	"github.com/yungbote/skillpath-backend/internal/types"
)

var (
	ErrRoadmapNotFound = errors.New("roadmap not found")
	ErrUnknownNode     = errors.New("unknown task node")
	ErrProgressGap     = errors.New("completed nodes must form a contiguous prefix of the task list")
)

// FlattenTaskList produces the stable ordered task sequence for a roadmap:
// phase order, then milestone order, then task order. The result is the
// ordering every progress write is validated against; it is never reordered
// for a given roadmap version.
func FlattenTaskList(content *types.RoadmapContent) []string {
	var out []string
	if content == nil {
		return out
	}
	for _, phase := range content.Phases {
		for _, milestone := range phase.Milestones {
			for _, task := range milestone.Tasks {
				out = append(out, task.ID)
			}
		}
	}
	return out
}

// ProgressService owns the server side of roadmap progress. Every write
// re-validates the contiguous-prefix rule and recomputes the derived fields;
// the persisted response is the source of truth clients overwrite their
// local state with.
type ProgressService interface {
	Initialize(ctx context.Context, roadmapID uuid.UUID) (*types.RoadmapProgress, error)
	GetForOwner(ctx context.Context, userID, roadmapID uuid.UUID) (*types.RoadmapProgress, error)
	UpdateProgress(ctx context.Context, userID, roadmapID uuid.UUID, completedNodes []string) (*types.RoadmapProgress, error)
}

type progressService struct {
	db           *gorm.DB
	log          *logger.Logger
	roadmapRepo  repos.RoadmapRepo
	progressRepo repos.RoadmapProgressRepo
}

func NewProgressService(db *gorm.DB, log *logger.Logger, roadmapRepo repos.RoadmapRepo, progressRepo repos.RoadmapProgressRepo) ProgressService {
	return &progressService{
		db:           db,
		log:          log.With("service", "ProgressService"),
		roadmapRepo:  roadmapRepo,
		progressRepo: progressRepo,
	}
}

func (s *progressService) Initialize(ctx context.Context, roadmapID uuid.UUID) (*types.RoadmapProgress, error) {
	roadmap, err := s.roadmapRepo.GetByID(ctx, nil, roadmapID)
	if err != nil {
		return nil, err
	}
	if roadmap == nil {
		return nil, ErrRoadmapNotFound
	}
	existing, err := s.progressRepo.GetByRoadmapID(ctx, nil, roadmapID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	content, err := roadmap.ParseContent()
	if err != nil {
		return nil, fmt.Errorf("parse roadmap content: %w", err)
	}
	order := FlattenTaskList(content)
	row := &types.RoadmapProgress{
		ID:             uuid.New(),
		RoadmapID:      roadmapID,
		CompletedNodes: mustEncodeNodes(nil),
		CompletedCount: 0,
		TotalNodes:     len(order),
		Percent:        0,
		LearningStatus: types.LearningStatusNotStarted,
	}
	created, err := s.progressRepo.Create(ctx, nil, row)
	if err != nil {
		return nil, err
	}
	s.log.Info("Roadmap progress initialized", "roadmap_id", roadmapID, "total_nodes", len(order))
	return created, nil
}

func (s *progressService) GetForOwner(ctx context.Context, userID, roadmapID uuid.UUID) (*types.RoadmapProgress, error) {
	roadmap, err := s.roadmapRepo.GetByIDForOwner(ctx, nil, roadmapID, userID)
	if err != nil {
		return nil, err
	}
	if roadmap == nil {
		return nil, ErrRoadmapNotFound
	}
	return s.Initialize(ctx, roadmapID)
}

func (s *progressService) UpdateProgress(ctx context.Context, userID, roadmapID uuid.UUID, completedNodes []string) (*types.RoadmapProgress, error) {
	roadmap, err := s.roadmapRepo.GetByIDForOwner(ctx, nil, roadmapID, userID)
	if err != nil {
		return nil, err
	}
	if roadmap == nil {
		return nil, ErrRoadmapNotFound
	}
	content, err := roadmap.ParseContent()
	if err != nil {
		return nil, fmt.Errorf("parse roadmap content: %w", err)
	}
	order := FlattenTaskList(content)
	prefix, err := validatePrefix(order, completedNodes)
	if err != nil {
		return nil, err
	}

	row, err := s.progressRepo.GetByRoadmapID(ctx, nil, roadmapID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		if row, err = s.Initialize(ctx, roadmapID); err != nil {
			return nil, err
		}
	}

	row.CompletedNodes = mustEncodeNodes(prefix)
	row.CompletedCount = len(prefix)
	row.TotalNodes = len(order)
	row.Percent = derivePercent(len(prefix), len(order))
	row.LearningStatus = deriveLearningStatus(len(prefix), len(order))
	if err := s.progressRepo.Save(ctx, nil, row); err != nil {
		return nil, err
	}
	s.log.Debug("Roadmap progress updated",
		"roadmap_id", roadmapID,
		"completed", row.CompletedCount,
		"total", row.TotalNodes,
		"learning_status", row.LearningStatus,
	)
	return row, nil
}

// validatePrefix enforces the contiguous-prefix rule: the submitted set,
// deduplicated and mapped to positions in the ordered list, must be exactly
// [0, k). It returns the set normalized to list order.
func validatePrefix(order []string, completedNodes []string) ([]string, error) {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	seen := make(map[string]bool, len(completedNodes))
	maxPos := -1
	for _, id := range completedNodes {
		p, ok := pos[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if p > maxPos {
			maxPos = p
		}
	}
	if len(seen) != maxPos+1 {
		return nil, ErrProgressGap
	}
	return append([]string{}, order[:len(seen)]...), nil
}

func derivePercent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) * 100 / float64(total)))
}

func deriveLearningStatus(completed, total int) string {
	switch {
	case completed <= 0:
		return types.LearningStatusNotStarted
	case total > 0 && completed >= total:
		return types.LearningStatusCompleted
	default:
		return types.LearningStatusInProgress
	}
}

func mustEncodeNodes(nodes []string) []byte {
	if nodes == nil {
		nodes = []string{}
	}
	raw, err := json.Marshal(nodes)
	if err != nil {
		// a []string cannot fail to marshal
		return []byte("[]")
	}
	return raw
}

// DecodeCompletedNodes unpacks the persisted node set.
func DecodeCompletedNodes(row *types.RoadmapProgress) ([]string, error) {
	if row == nil || len(row.CompletedNodes) == 0 {
		return []string{}, nil
	}
	var nodes []string
	if err := json.Unmarshal(row.CompletedNodes, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}
