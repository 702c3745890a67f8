package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/skillpath-backend/internal/types"
)

type fakeSubmissionRepo struct {
	mu   sync.Mutex
	rows []*types.CapstoneSubmission
}

func (r *fakeSubmissionRepo) Create(ctx context.Context, tx *gorm.DB, row *types.CapstoneSubmission) (*types.CapstoneSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *row
	r.rows = append(r.rows, &copied)
	out := copied
	return &out, nil
}

func (r *fakeSubmissionRepo) GetByRoadmapID(ctx context.Context, tx *gorm.DB, roadmapID uuid.UUID) ([]*types.CapstoneSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.CapstoneSubmission
	for _, row := range r.rows {
		if row.RoadmapID == roadmapID {
			copied := *row
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (r *fakeSubmissionRepo) GetLatestByRoadmapID(ctx context.Context, tx *gorm.DB, roadmapID uuid.UUID) (*types.CapstoneSubmission, error) {
	rows, err := r.GetByRoadmapID(ctx, tx, roadmapID)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

type fakeReviewer struct {
	mu       sync.Mutex
	calls    int
	result   *ReviewResult
	err      error
	onReview func()
}

func (f *fakeReviewer) Review(ctx context.Context, req ReviewRequest) (*ReviewResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onReview != nil {
		f.onReview()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := *f.result
	return &out, nil
}

func (f *fakeReviewer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type capstoneFixture struct {
	svc       CapstoneService
	roadmaps  *fakeRoadmapRepo
	progress  *fakeProgressRepo
	subs      *fakeSubmissionRepo
	reviewer  *fakeReviewer
	userID    uuid.UUID
	roadmapID uuid.UUID
}

func newCapstoneFixture(t *testing.T, reviewer *fakeReviewer) *capstoneFixture {
	t.Helper()
	roadmapRepo := newFakeRoadmapRepo()
	progressRepo := newFakeProgressRepo()
	subRepo := &fakeSubmissionRepo{}
	userID := uuid.New()
	roadmap := seedRoadmap(t, roadmapRepo, userID)
	svc := NewCapstoneService(nil, mustTestLogger(t), roadmapRepo, progressRepo, subRepo, reviewer)
	return &capstoneFixture{
		svc:       svc,
		roadmaps:  roadmapRepo,
		progress:  progressRepo,
		subs:      subRepo,
		reviewer:  reviewer,
		userID:    userID,
		roadmapID: roadmap.ID,
	}
}

func (f *capstoneFixture) completeAllTasks(t *testing.T) {
	t.Helper()
	_, err := f.progress.Create(context.Background(), nil, &types.RoadmapProgress{
		ID:             uuid.New(),
		RoadmapID:      f.roadmapID,
		CompletedNodes: []byte(`["t1","t2","t3","t4","t5","t6"]`),
		CompletedCount: 6,
		TotalNodes:     6,
		Percent:        100,
		LearningStatus: types.LearningStatusCompleted,
	})
	if err != nil {
		t.Fatalf("seed completed progress: %v", err)
	}
}

func passResult() *ReviewResult {
	return &ReviewResult{
		Verdict: types.VerdictPass,
		Score:   92,
		RequirementResults: []types.RequirementResult{
			{Requirement: "has tests", Met: true, Feedback: "good coverage"},
			{Requirement: "has README", Met: true, Feedback: "clear"},
			{Requirement: "deployed", Met: true, Feedback: "live"},
		},
		Strengths:       []string{"clean structure"},
		Improvements:    []string{},
		OverallFeedback: "solid work",
	}
}

func TestValidGithubRepoURL(t *testing.T) {
	valid := []string{
		"https://github.com/alice/portfolio",
		"https://github.com/alice/my.project-v2",
		"https://github.com/org-name/repo_name/",
	}
	for _, url := range valid {
		if !ValidGithubRepoURL(url) {
			t.Fatalf("url should be valid: %s", url)
		}
	}
	invalid := []string{
		"",
		"github.com/alice/portfolio",
		"http://github.com/alice/portfolio",
		"https://gitlab.com/alice/portfolio",
		"https://github.com/alice",
		"https://github.com/alice/repo/tree/main",
	}
	for _, url := range invalid {
		if ValidGithubRepoURL(url) {
			t.Fatalf("url should be invalid: %s", url)
		}
	}
}

func TestSubmitRejectsBadURLBeforeReview(t *testing.T) {
	reviewer := &fakeReviewer{result: passResult()}
	f := newCapstoneFixture(t, reviewer)
	f.completeAllTasks(t)

	_, err := f.svc.Submit(context.Background(), f.userID, f.roadmapID, "https://gitlab.com/alice/portfolio")
	if !errors.Is(err, ErrInvalidGithubURL) {
		t.Fatalf("error: want=%v got=%v", ErrInvalidGithubURL, err)
	}
	if got := reviewer.callCount(); got != 0 {
		t.Fatalf("reviewer calls on invalid url: want=0 got=%d", got)
	}
}

func TestSubmitRequiresCompletedTasks(t *testing.T) {
	reviewer := &fakeReviewer{result: passResult()}
	f := newCapstoneFixture(t, reviewer)
	// no completeAllTasks: progress row absent

	_, err := f.svc.Submit(context.Background(), f.userID, f.roadmapID, "https://github.com/alice/portfolio")
	if !errors.Is(err, ErrTasksIncomplete) {
		t.Fatalf("error: want=%v got=%v", ErrTasksIncomplete, err)
	}
	if got := reviewer.callCount(); got != 0 {
		t.Fatalf("reviewer calls with tasks incomplete: want=0 got=%d", got)
	}
}

func TestSubmitRequiresCapstoneDefinition(t *testing.T) {
	reviewer := &fakeReviewer{result: passResult()}
	f := newCapstoneFixture(t, reviewer)
	f.completeAllTasks(t)

	// Strip the capstone off the roadmap body.
	roadmap, _ := f.roadmaps.GetByID(context.Background(), nil, f.roadmapID)
	content, err := roadmap.ParseContent()
	if err != nil {
		t.Fatalf("ParseContent: %v", err)
	}
	content.Capstone = nil
	raw, err := json.Marshal(content)
	if err != nil {
		t.Fatalf("marshal content: %v", err)
	}
	f.roadmaps.mu.Lock()
	f.roadmaps.roadmaps[f.roadmapID].Content = raw
	f.roadmaps.mu.Unlock()

	if _, err := f.svc.Submit(context.Background(), f.userID, f.roadmapID, "https://github.com/alice/portfolio"); !errors.Is(err, ErrNoCapstone) {
		t.Fatalf("error: want=%v got=%v", ErrNoCapstone, err)
	}
	if got := reviewer.callCount(); got != 0 {
		t.Fatalf("reviewer calls without capstone: want=0 got=%d", got)
	}
}

func TestSubmitPassMarksRoadmapPassed(t *testing.T) {
	reviewer := &fakeReviewer{result: passResult()}
	f := newCapstoneFixture(t, reviewer)
	f.completeAllTasks(t)

	result, err := f.svc.Submit(context.Background(), f.userID, f.roadmapID, "https://github.com/alice/portfolio")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.CapstoneStatus != types.CapstoneStatusPassed {
		t.Fatalf("capstone status: want=%s got=%s", types.CapstoneStatusPassed, result.CapstoneStatus)
	}
	if result.Submission.Verdict != types.VerdictPass {
		t.Fatalf("verdict: want=%s got=%s", types.VerdictPass, result.Submission.Verdict)
	}
	if result.Submission.Score != 92 {
		t.Fatalf("score: want=92 got=%d", result.Submission.Score)
	}
	roadmap, _ := f.roadmaps.GetByID(context.Background(), nil, f.roadmapID)
	if roadmap.CapstoneStatus != types.CapstoneStatusPassed {
		t.Fatalf("persisted status: want=%s got=%s", types.CapstoneStatusPassed, roadmap.CapstoneStatus)
	}
}

func TestSubmitFailAllowsResubmission(t *testing.T) {
	reviewer := &fakeReviewer{result: &ReviewResult{Verdict: types.VerdictFail, Score: 35, OverallFeedback: "missing tests"}}
	f := newCapstoneFixture(t, reviewer)
	f.completeAllTasks(t)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, f.userID, f.roadmapID, "https://github.com/alice/portfolio")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if first.CapstoneStatus != types.CapstoneStatusFailed {
		t.Fatalf("status after fail: want=%s got=%s", types.CapstoneStatusFailed, first.CapstoneStatus)
	}

	reviewer.mu.Lock()
	reviewer.result = passResult()
	reviewer.mu.Unlock()

	second, err := f.svc.Submit(ctx, f.userID, f.roadmapID, "https://github.com/alice/portfolio")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.CapstoneStatus != types.CapstoneStatusPassed {
		t.Fatalf("status after retry pass: want=%s got=%s", types.CapstoneStatusPassed, second.CapstoneStatus)
	}

	history, err := f.svc.History(ctx, f.userID, f.roadmapID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length: want=2 got=%d", len(history))
	}
}

func TestPassedStatusIsSticky(t *testing.T) {
	reviewer := &fakeReviewer{result: passResult()}
	f := newCapstoneFixture(t, reviewer)
	f.completeAllTasks(t)
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, f.userID, f.roadmapID, "https://github.com/alice/portfolio"); err != nil {
		t.Fatalf("passing submit: %v", err)
	}

	reviewer.mu.Lock()
	reviewer.result = &ReviewResult{Verdict: types.VerdictFail, Score: 10}
	reviewer.mu.Unlock()

	result, err := f.svc.Submit(ctx, f.userID, f.roadmapID, "https://github.com/alice/experiment")
	if err != nil {
		t.Fatalf("post-pass submit: %v", err)
	}
	if result.Submission.Verdict != types.VerdictFail {
		t.Fatalf("later submission keeps its own verdict: want=%s got=%s", types.VerdictFail, result.Submission.Verdict)
	}
	if result.CapstoneStatus != types.CapstoneStatusPassed {
		t.Fatalf("passed must not revert: want=%s got=%s", types.CapstoneStatusPassed, result.CapstoneStatus)
	}
	roadmap, _ := f.roadmaps.GetByID(ctx, nil, f.roadmapID)
	if roadmap.CapstoneStatus != types.CapstoneStatusPassed {
		t.Fatalf("persisted status must stay passed, got %s", roadmap.CapstoneStatus)
	}
}

func TestSubmitClampsScoreAndCoercesVerdict(t *testing.T) {
	reviewer := &fakeReviewer{result: &ReviewResult{Verdict: "excellent", Score: 140}}
	f := newCapstoneFixture(t, reviewer)
	f.completeAllTasks(t)

	result, err := f.svc.Submit(context.Background(), f.userID, f.roadmapID, "https://github.com/alice/portfolio")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Submission.Verdict != types.VerdictFail {
		t.Fatalf("unknown verdict: want=%s got=%s", types.VerdictFail, result.Submission.Verdict)
	}
	if result.Submission.Score != 100 {
		t.Fatalf("score clamp: want=100 got=%d", result.Submission.Score)
	}
}

func TestSubmitTimeoutIsNotAVerdict(t *testing.T) {
	reviewer := &fakeReviewer{err: timeoutErr{}}
	f := newCapstoneFixture(t, reviewer)
	f.completeAllTasks(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.userID, f.roadmapID, "https://github.com/alice/portfolio")
	if !errors.Is(err, ErrReviewTimeout) {
		t.Fatalf("error: want=%v got=%v", ErrReviewTimeout, err)
	}

	history, err := f.svc.History(ctx, f.userID, f.roadmapID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("timed-out review must record no submission, got %d", len(history))
	}
	// The review may still be running remotely, so the roadmap stays
	// submitted instead of reverting.
	roadmap, _ := f.roadmaps.GetByID(ctx, nil, f.roadmapID)
	if roadmap.CapstoneStatus != types.CapstoneStatusSubmitted {
		t.Fatalf("status after timeout: want=%s got=%s", types.CapstoneStatusSubmitted, roadmap.CapstoneStatus)
	}
}

func TestSubmitMarksRoadmapSubmittedDuringReview(t *testing.T) {
	reviewer := &fakeReviewer{result: passResult()}
	f := newCapstoneFixture(t, reviewer)
	f.completeAllTasks(t)
	ctx := context.Background()

	var during string
	reviewer.onReview = func() {
		roadmap, _ := f.roadmaps.GetByID(ctx, nil, f.roadmapID)
		during = roadmap.CapstoneStatus
	}

	result, err := f.svc.Submit(ctx, f.userID, f.roadmapID, "https://github.com/alice/portfolio")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if during != types.CapstoneStatusSubmitted {
		t.Fatalf("status while review runs: want=%s got=%s", types.CapstoneStatusSubmitted, during)
	}
	if result.CapstoneStatus != types.CapstoneStatusPassed {
		t.Fatalf("final status: want=%s got=%s", types.CapstoneStatusPassed, result.CapstoneStatus)
	}
}

func TestSubmitReviewErrorRestoresStatus(t *testing.T) {
	reviewer := &fakeReviewer{err: errors.New("reviewer unavailable")}
	f := newCapstoneFixture(t, reviewer)
	f.completeAllTasks(t)
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, f.userID, f.roadmapID, "https://github.com/alice/portfolio"); err == nil {
		t.Fatalf("Submit should surface the review error")
	}
	roadmap, _ := f.roadmaps.GetByID(ctx, nil, f.roadmapID)
	if roadmap.CapstoneStatus != types.CapstoneStatusNotStarted {
		t.Fatalf("status after review error: want=%s got=%s", types.CapstoneStatusNotStarted, roadmap.CapstoneStatus)
	}
}

func TestSubmitDeadlineExceededMapsToTimeout(t *testing.T) {
	reviewer := &fakeReviewer{err: context.DeadlineExceeded}
	f := newCapstoneFixture(t, reviewer)
	f.completeAllTasks(t)

	_, err := f.svc.Submit(context.Background(), f.userID, f.roadmapID, "https://github.com/alice/portfolio")
	if !errors.Is(err, ErrReviewTimeout) {
		t.Fatalf("error: want=%v got=%v", ErrReviewTimeout, err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	reviewer := &fakeReviewer{result: &ReviewResult{Verdict: types.VerdictPartial, Score: 60}}
	f := newCapstoneFixture(t, reviewer)
	f.completeAllTasks(t)
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, f.userID, f.roadmapID, "https://github.com/alice/v1"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := f.svc.Submit(ctx, f.userID, f.roadmapID, "https://github.com/alice/v2"); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	history, err := f.svc.History(ctx, f.userID, f.roadmapID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length: want=2 got=%d", len(history))
	}
	if !history[0].SubmittedAt.After(history[1].SubmittedAt) && !history[0].SubmittedAt.Equal(history[1].SubmittedAt) {
		t.Fatalf("history must be newest first")
	}
	if _, err := f.svc.History(ctx, uuid.New(), f.roadmapID); !errors.Is(err, ErrRoadmapNotFound) {
		t.Fatalf("foreign owner history: want=%v got=%v", ErrRoadmapNotFound, err)
	}
}
