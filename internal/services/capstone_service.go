package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/repos"
	"github.com/yungbote/skillpath-backend/internal/types"
)

var (
	ErrInvalidGithubURL = errors.New("github url must look like https://github.com/{owner}/{repo}")
	ErrTasksIncomplete  = errors.New("complete all roadmap tasks before submitting a capstone")
	ErrNoCapstone       = errors.New("roadmap declares no capstone")
	// ErrReviewTimeout is a transport condition, not a verdict: the review may
	// still be running remotely, so it is surfaced separately from a failed
	// submission.
	ErrReviewTimeout = errors.New("review is taking unusually long, refresh to check")
)

var githubRepoPattern = regexp.MustCompile(`^https://github\.com/[A-Za-z0-9][A-Za-z0-9-]*/[A-Za-z0-9._-]+/?$`)

// ValidGithubRepoURL is the local pre-network check on submission input.
func ValidGithubRepoURL(raw string) bool {
	return githubRepoPattern.MatchString(raw)
}

type CapstoneResult struct {
	Submission     *types.CapstoneSubmission `json:"submission"`
	CapstoneStatus string                    `json:"capstone_status"`
	LearningStatus string                    `json:"learning_status"`
}

// CapstoneService runs the submission state machine:
// not_started -> submitted -> {passed, failed}. failed permits resubmission;
// passed is sticky and no later submission can revert it. History is
// append-only.
type CapstoneService interface {
	Submit(ctx context.Context, userID, roadmapID uuid.UUID, githubURL string) (*CapstoneResult, error)
	History(ctx context.Context, userID, roadmapID uuid.UUID) ([]*types.CapstoneSubmission, error)
}

type capstoneService struct {
	db             *gorm.DB
	log            *logger.Logger
	roadmapRepo    repos.RoadmapRepo
	progressRepo   repos.RoadmapProgressRepo
	submissionRepo repos.CapstoneSubmissionRepo
	reviewer       CapstoneReviewer
}

func NewCapstoneService(
	db *gorm.DB,
	log *logger.Logger,
	roadmapRepo repos.RoadmapRepo,
	progressRepo repos.RoadmapProgressRepo,
	submissionRepo repos.CapstoneSubmissionRepo,
	reviewer CapstoneReviewer,
) CapstoneService {
	return &capstoneService{
		db:             db,
		log:            log.With("service", "CapstoneService"),
		roadmapRepo:    roadmapRepo,
		progressRepo:   progressRepo,
		submissionRepo: submissionRepo,
		reviewer:       reviewer,
	}
}

func (s *capstoneService) Submit(ctx context.Context, userID, roadmapID uuid.UUID, githubURL string) (*CapstoneResult, error) {
	// Validation failures are rejected here, before any network call.
	if !ValidGithubRepoURL(githubURL) {
		return nil, ErrInvalidGithubURL
	}
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
	if content.Capstone == nil || len(content.Capstone.Requirements) == 0 {
		return nil, ErrNoCapstone
	}
	progress, err := s.progressRepo.GetByRoadmapID(ctx, nil, roadmapID)
	if err != nil {
		return nil, err
	}
	if progress == nil || progress.LearningStatus != types.LearningStatusCompleted {
		return nil, ErrTasksIncomplete
	}

	// Mark the submission in flight so concurrent readers see it while the
	// review runs. A passed roadmap never leaves passed.
	prior := roadmap.CapstoneStatus
	if prior != types.CapstoneStatusPassed {
		if err := s.roadmapRepo.UpdateCapstoneStatus(ctx, nil, roadmapID, types.CapstoneStatusSubmitted); err != nil {
			return nil, err
		}
	}

	result, err := s.reviewer.Review(ctx, ReviewRequest{
		GithubURL:     githubURL,
		CapstoneTitle: content.Capstone.Title,
		Requirements:  content.Capstone.Requirements,
	})
	if err != nil {
		if isReviewTimeout(err) {
			// The review may still be running remotely, so the roadmap stays
			// submitted until a later attempt settles it.
			return nil, ErrReviewTimeout
		}
		if prior != types.CapstoneStatusPassed {
			if restoreErr := s.roadmapRepo.UpdateCapstoneStatus(ctx, nil, roadmapID, prior); restoreErr != nil {
				s.log.Error("Restore capstone status after review error", "error", restoreErr)
			}
		}
		return nil, fmt.Errorf("capstone review: %w", err)
	}

	submission, err := s.buildSubmission(userID, roadmapID, githubURL, result)
	if err != nil {
		return nil, err
	}
	if submission, err = s.submissionRepo.Create(ctx, nil, submission); err != nil {
		return nil, err
	}

	status := deriveCapstoneStatus(prior, submission.Verdict)
	if err := s.roadmapRepo.UpdateCapstoneStatus(ctx, nil, roadmapID, status); err != nil {
		return nil, err
	}
	s.log.Info("Capstone submission reviewed",
		"roadmap_id", roadmapID,
		"verdict", submission.Verdict,
		"score", submission.Score,
		"capstone_status", status,
	)
	return &CapstoneResult{
		Submission:     submission,
		CapstoneStatus: status,
		LearningStatus: progress.LearningStatus,
	}, nil
}

func (s *capstoneService) History(ctx context.Context, userID, roadmapID uuid.UUID) ([]*types.CapstoneSubmission, error) {
	roadmap, err := s.roadmapRepo.GetByIDForOwner(ctx, nil, roadmapID, userID)
	if err != nil {
		return nil, err
	}
	if roadmap == nil {
		return nil, ErrRoadmapNotFound
	}
	return s.submissionRepo.GetByRoadmapID(ctx, nil, roadmapID)
}

func (s *capstoneService) buildSubmission(userID, roadmapID uuid.UUID, githubURL string, result *ReviewResult) (*types.CapstoneSubmission, error) {
	verdict := result.Verdict
	switch verdict {
	case types.VerdictPass, types.VerdictPartial, types.VerdictFail:
	default:
		s.log.Warn("Reviewer returned unknown verdict, treating as fail", "verdict", verdict)
		verdict = types.VerdictFail
	}
	requirementResults, err := json.Marshal(result.RequirementResults)
	if err != nil {
		return nil, err
	}
	strengths, err := json.Marshal(emptyIfNil(result.Strengths))
	if err != nil {
		return nil, err
	}
	improvements, err := json.Marshal(emptyIfNil(result.Improvements))
	if err != nil {
		return nil, err
	}
	return &types.CapstoneSubmission{
		ID:                 uuid.New(),
		RoadmapID:          roadmapID,
		UserID:             userID,
		GithubURL:          githubURL,
		Verdict:            verdict,
		Score:              clampScore(result.Score),
		RequirementResults: requirementResults,
		Strengths:          strengths,
		Improvements:       improvements,
		OverallFeedback:    result.OverallFeedback,
		SubmittedAt:        time.Now(),
	}, nil
}

// deriveCapstoneStatus maps a verdict onto the roadmap status. passed is
// sticky: once reached, no later verdict moves it.
func deriveCapstoneStatus(current, verdict string) string {
	if current == types.CapstoneStatusPassed {
		return types.CapstoneStatusPassed
	}
	if verdict == types.VerdictPass {
		return types.CapstoneStatusPassed
	}
	return types.CapstoneStatusFailed
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func isReviewTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
