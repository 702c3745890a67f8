package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/types"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*types.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*types.Job)}
}

func (r *fakeJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.Job) (*types.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return &copied, nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) GetByIDForOwner(ctx context.Context, tx *gorm.DB, id, ownerUserID uuid.UUID) (*types.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.OwnerUserID != ownerUserID {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, resultRef string) (*types.Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, false, nil
	}
	if job.Status != types.JobStatusPending {
		copied := *job
		return &copied, false, nil
	}
	now := time.Now()
	job.Status = types.JobStatusCompleted
	job.ResultRef = resultRef
	job.SettledAt = &now
	copied := *job
	return &copied, true, nil
}

func (r *fakeJobRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) (*types.Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, false, nil
	}
	if job.Status != types.JobStatusPending {
		copied := *job
		return &copied, false, nil
	}
	now := time.Now()
	job.Status = types.JobStatusFailed
	job.FailureReason = reason
	job.SettledAt = &now
	copied := *job
	return &copied, true, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	completed []uuid.UUID
	failed    []uuid.UUID
	reasons   []string
}

func (n *fakeNotifier) JobCompleted(ctx context.Context, job *types.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, job.ID)
}

func (n *fakeNotifier) JobFailed(ctx context.Context, job *types.Job, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, job.ID)
	n.reasons = append(n.reasons, reason)
}

type fakeProgressInit struct {
	mu          sync.Mutex
	initialized []uuid.UUID
}

func (p *fakeProgressInit) Initialize(ctx context.Context, roadmapID uuid.UUID) (*types.RoadmapProgress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = append(p.initialized, roadmapID)
	return &types.RoadmapProgress{ID: uuid.New(), RoadmapID: roadmapID}, nil
}

func (p *fakeProgressInit) GetForOwner(ctx context.Context, userID, roadmapID uuid.UUID) (*types.RoadmapProgress, error) {
	return nil, ErrRoadmapNotFound
}

func (p *fakeProgressInit) UpdateProgress(ctx context.Context, userID, roadmapID uuid.UUID, completedNodes []string) (*types.RoadmapProgress, error) {
	return nil, ErrRoadmapNotFound
}

func newTestJobService(t *testing.T) (JobService, *fakeJobRepo, *fakeNotifier, *fakeProgressInit) {
	t.Helper()
	repo := newFakeJobRepo()
	notifier := &fakeNotifier{}
	progress := &fakeProgressInit{}
	svc := NewJobService(nil, mustTestLogger(t), repo, notifier, progress)
	return svc, repo, notifier, progress
}

func TestCreateJobRejectsUnknownKind(t *testing.T) {
	svc, _, _, _ := newTestJobService(t)
	if _, err := svc.CreateJob(context.Background(), uuid.New(), "resume_rewrite", nil); err == nil {
		t.Fatalf("unknown kind should be rejected")
	}
}

func TestCreateJobStartsPending(t *testing.T) {
	svc, _, _, _ := newTestJobService(t)
	job, err := svc.CreateJob(context.Background(), uuid.New(), types.JobKindCoverLetter, map[string]any{"tone": "formal"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != types.JobStatusPending {
		t.Fatalf("status: want=%s got=%s", types.JobStatusPending, job.Status)
	}
	if job.SettledAt != nil {
		t.Fatalf("settled_at should be unset on creation")
	}
}

func TestGetJobForOwnerHidesOtherUsersJobs(t *testing.T) {
	svc, _, _, _ := newTestJobService(t)
	owner := uuid.New()
	job, err := svc.CreateJob(context.Background(), owner, types.JobKindChatMessage, nil)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := svc.GetJobForOwner(context.Background(), uuid.New(), job.ID); err != ErrJobNotFound {
		t.Fatalf("foreign owner lookup: want=%v got=%v", ErrJobNotFound, err)
	}
	got, err := svc.GetJobForOwner(context.Background(), owner, job.ID)
	if err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if got.ID != job.ID {
		t.Fatalf("job id: want=%s got=%s", job.ID, got.ID)
	}
}

func TestSettleCompletedNotifiesExactlyOnce(t *testing.T) {
	svc, _, notifier, _ := newTestJobService(t)
	job, err := svc.CreateJob(context.Background(), uuid.New(), types.JobKindCoverLetter, nil)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	first, err := svc.SettleCompleted(context.Background(), job.ID, "cover-letter-ref")
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if first.Status != types.JobStatusCompleted {
		t.Fatalf("status: want=%s got=%s", types.JobStatusCompleted, first.Status)
	}
	if first.ResultRef != "cover-letter-ref" {
		t.Fatalf("result_ref: want=cover-letter-ref got=%s", first.ResultRef)
	}
	if first.SettledAt == nil {
		t.Fatalf("settled_at should be set on terminal transition")
	}

	// A retried worker callback is a no-op: same terminal row, no new event.
	second, err := svc.SettleCompleted(context.Background(), job.ID, "other-ref")
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if second.ResultRef != "cover-letter-ref" {
		t.Fatalf("result_ref must not be overwritten: want=cover-letter-ref got=%s", second.ResultRef)
	}
	if got := len(notifier.completed); got != 1 {
		t.Fatalf("completed notifications: want=1 got=%d", got)
	}
}

func TestSettleFailedDoesNotOverrideCompleted(t *testing.T) {
	svc, _, notifier, _ := newTestJobService(t)
	job, err := svc.CreateJob(context.Background(), uuid.New(), types.JobKindChatMessage, nil)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := svc.SettleCompleted(context.Background(), job.ID, "ref"); err != nil {
		t.Fatalf("settle completed: %v", err)
	}

	got, err := svc.SettleFailed(context.Background(), job.ID, types.FailureReasonGeneric)
	if err != nil {
		t.Fatalf("late fail callback: %v", err)
	}
	if got.Status != types.JobStatusCompleted {
		t.Fatalf("status: want=%s got=%s", types.JobStatusCompleted, got.Status)
	}
	if len(notifier.failed) != 0 {
		t.Fatalf("failed notifications after completed settle: want=0 got=%d", len(notifier.failed))
	}
}

func TestSettleFailedCarriesReason(t *testing.T) {
	svc, _, notifier, _ := newTestJobService(t)
	job, err := svc.CreateJob(context.Background(), uuid.New(), types.JobKindRoadmap, nil)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	got, err := svc.SettleFailed(context.Background(), job.ID, types.FailureReasonInsufficientCredits)
	if err != nil {
		t.Fatalf("SettleFailed: %v", err)
	}
	if got.FailureReason != types.FailureReasonInsufficientCredits {
		t.Fatalf("failure reason: want=%s got=%s", types.FailureReasonInsufficientCredits, got.FailureReason)
	}
	if len(notifier.reasons) != 1 || notifier.reasons[0] != types.FailureReasonInsufficientCredits {
		t.Fatalf("notified reasons: want=[%s] got=%v", types.FailureReasonInsufficientCredits, notifier.reasons)
	}
}

func TestSettleUnknownJob(t *testing.T) {
	svc, _, _, _ := newTestJobService(t)
	if _, err := svc.SettleCompleted(context.Background(), uuid.New(), "ref"); err != ErrJobNotFound {
		t.Fatalf("unknown job settle: want=%v got=%v", ErrJobNotFound, err)
	}
}

func TestCompletedRoadmapJobInitializesProgress(t *testing.T) {
	svc, _, _, progress := newTestJobService(t)
	job, err := svc.CreateJob(context.Background(), uuid.New(), types.JobKindRoadmap, nil)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	roadmapID := uuid.New()
	if _, err := svc.SettleCompleted(context.Background(), job.ID, roadmapID.String()); err != nil {
		t.Fatalf("SettleCompleted: %v", err)
	}
	if len(progress.initialized) != 1 || progress.initialized[0] != roadmapID {
		t.Fatalf("initialized roadmaps: want=[%s] got=%v", roadmapID, progress.initialized)
	}

	// A non-roadmap completion never touches progress.
	other, err := svc.CreateJob(context.Background(), uuid.New(), types.JobKindCoverLetter, nil)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := svc.SettleCompleted(context.Background(), other.ID, "letter-ref"); err != nil {
		t.Fatalf("SettleCompleted: %v", err)
	}
	if len(progress.initialized) != 1 {
		t.Fatalf("initialized roadmaps after cover letter: want=1 got=%d", len(progress.initialized))
	}
}
