package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/repos"
	"github.com/yungbote/skillpath-backend/internal/types"
)

var (
	ErrUnknownJobKind = errors.New("unknown job kind")
	ErrJobNotFound    = errors.New("job not found")
)

// JobService tracks one generation request from creation to settlement.
// Settlement is driven by the external worker through SettleCompleted /
// SettleFailed; both are idempotent, a job settles at most once and repeated
// calls return the existing terminal state without re-notifying.
type JobService interface {
	CreateJob(ctx context.Context, ownerUserID uuid.UUID, kind string, input map[string]any) (*types.Job, error)
	GetJobForOwner(ctx context.Context, ownerUserID, jobID uuid.UUID) (*types.Job, error)
	SettleCompleted(ctx context.Context, jobID uuid.UUID, resultRef string) (*types.Job, error)
	SettleFailed(ctx context.Context, jobID uuid.UUID, reason string) (*types.Job, error)
}

type jobService struct {
	db       *gorm.DB
	log      *logger.Logger
	jobRepo  repos.JobRepo
	notifier JobNotifier
	progress ProgressService
}

func NewJobService(db *gorm.DB, log *logger.Logger, jobRepo repos.JobRepo, notifier JobNotifier, progress ProgressService) JobService {
	return &jobService{
		db:       db,
		log:      log.With("service", "JobService"),
		jobRepo:  jobRepo,
		notifier: notifier,
		progress: progress,
	}
}

func (s *jobService) CreateJob(ctx context.Context, ownerUserID uuid.UUID, kind string, input map[string]any) (*types.Job, error) {
	if !types.ValidJobKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobKind, kind)
	}
	var rawInput []byte
	if input != nil {
		encoded, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("encode job input: %w", err)
		}
		rawInput = encoded
	}
	job := &types.Job{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		Kind:        kind,
		Status:      types.JobStatusPending,
		Input:       rawInput,
	}
	created, err := s.jobRepo.Create(ctx, nil, job)
	if err != nil {
		return nil, err
	}
	s.log.Info("Job created", "job_id", created.ID, "kind", kind, "owner", ownerUserID)
	return created, nil
}

func (s *jobService) GetJobForOwner(ctx context.Context, ownerUserID, jobID uuid.UUID) (*types.Job, error) {
	job, err := s.jobRepo.GetByIDForOwner(ctx, nil, jobID, ownerUserID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *jobService) SettleCompleted(ctx context.Context, jobID uuid.UUID, resultRef string) (*types.Job, error) {
	job, transitioned, err := s.jobRepo.MarkCompleted(ctx, nil, jobID, resultRef)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if !transitioned {
		return job, nil
	}
	s.log.Info("Job settled completed", "job_id", job.ID, "kind", job.Kind)

	// A completed roadmap generation creates the empty progress record; task
	// completion is tracked against it from that point on.
	if job.Kind == types.JobKindRoadmap && job.ResultRef != "" {
		if roadmapID, parseErr := uuid.Parse(job.ResultRef); parseErr == nil {
			if _, initErr := s.progress.Initialize(ctx, roadmapID); initErr != nil {
				s.log.Warn("Failed to initialize roadmap progress", "roadmap_id", roadmapID, "error", initErr)
			}
		} else {
			s.log.Warn("Roadmap job settled with non-uuid result ref", "job_id", job.ID, "result_ref", job.ResultRef)
		}
	}

	s.notifier.JobCompleted(ctx, job)
	return job, nil
}

func (s *jobService) SettleFailed(ctx context.Context, jobID uuid.UUID, reason string) (*types.Job, error) {
	job, transitioned, err := s.jobRepo.MarkFailed(ctx, nil, jobID, reason)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if !transitioned {
		return job, nil
	}
	s.log.Info("Job settled failed", "job_id", job.ID, "kind", job.Kind, "reason", job.FailureReason)
	s.notifier.JobFailed(ctx, job, job.FailureReason)
	return job, nil
}
