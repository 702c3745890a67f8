package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/skillpath-backend/internal/logger"
)

type State string

const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	// StateIndeterminate means the poll budget ran out with no terminal
	// status observed. Distinct from failed: the job may still finish.
	StateIndeterminate State = "indeterminate"
)

const (
	FailureReasonRateLimited         = "rate_limited"
	FailureReasonInsufficientCredits = "insufficient_credits"
	FailureReasonProfileIncomplete   = "profile_incomplete"
	FailureReasonGeneric             = "generic_failure"
)

// FailureMessage maps a wire failure reason to its user-facing copy.
func FailureMessage(reason string) string {
	switch reason {
	case FailureReasonRateLimited:
		return "You're going a little fast. Wait a moment and try again."
	case FailureReasonInsufficientCredits:
		return "You're out of credits. Add credits to keep generating."
	case FailureReasonProfileIncomplete:
		return "Complete your profile before generating."
	default:
		return "Something went wrong generating this. Please try again."
	}
}

const indeterminateMessage = "Still processing. Check back in a moment."

// Outcome is the single terminal report a watch delivers.
type Outcome struct {
	State         State
	Job           *Job
	FailureReason string
	Message       string
	// ResultUnavailable marks the settled-but-result-unfetchable condition:
	// the push channel reported completion but the result read failed.
	ResultUnavailable bool
}

// jobAPI is the slice of the API client the watcher needs.
type jobAPI interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)
	StreamJob(ctx context.Context, jobID uuid.UUID) (<-chan StreamEvent, error)
}

type WatchOptions struct {
	PollInterval time.Duration
	MaxPolls     int
}

// DefaultWatchOptions suits short-lived jobs such as a chat reply.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{PollInterval: 2 * time.Second, MaxPolls: 30}
}

// LongJobWatchOptions suits long-running generations such as a roadmap.
func LongJobWatchOptions() WatchOptions {
	return WatchOptions{PollInterval: 2 * time.Second, MaxPolls: 120}
}

// Watcher reconciles the two observers of a job's settlement: the SSE push
// channel and the fallback poll loop. Whichever reports a terminal status
// first wins; the settlement guard then cancels the other and every later
// report is discarded, so the caller sees exactly one outcome.
type Watcher struct {
	log  *logger.Logger
	api  jobAPI
	opts WatchOptions
}

func NewWatcher(api jobAPI, log *logger.Logger, opts WatchOptions) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultWatchOptions().PollInterval
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = DefaultWatchOptions().MaxPolls
	}
	return &Watcher{
		log:  log.With("component", "JobWatcher"),
		api:  api,
		opts: opts,
	}
}

// Watch starts both observers. The returned channel delivers exactly one
// Outcome; the cancel func tears down the push subscription, the poll timer
// and any in-flight request, and is safe to call any number of times.
func (w *Watcher) Watch(ctx context.Context, jobID uuid.UUID) (<-chan Outcome, context.CancelFunc) {
	wctx, cancel := context.WithCancel(ctx)
	out := make(chan Outcome, 1)

	var once sync.Once
	settle := func(o Outcome) {
		once.Do(func() {
			out <- o
			cancel()
		})
	}

	// Poll runs from the start as a safety net; the push channel being alive
	// just means it usually loses the race.
	go w.runPushObserver(wctx, jobID, settle)
	go w.runPollObserver(wctx, jobID, settle)

	return out, cancel
}

func (w *Watcher) runPushObserver(ctx context.Context, jobID uuid.UUID, settle func(Outcome)) {
	events, err := w.api.StreamJob(ctx, jobID)
	if err != nil {
		// Transport failure is absorbed; polling is already armed.
		w.log.Debug("Push subscription failed, relying on poll", "job_id", jobID, "error", err)
		return
	}
	for ev := range events {
		switch ev.Event {
		case "connected":
			// liveness only
		case "completed":
			job, err := w.api.GetJob(ctx, jobID)
			if err != nil || job == nil {
				settle(Outcome{
					State:             StateCompleted,
					ResultUnavailable: true,
					Message:           "Done, but the result couldn't be loaded. Refresh to retry.",
				})
				return
			}
			settle(outcomeFromJob(job))
			return
		case "failed":
			var payload struct {
				Reason string `json:"reason"`
			}
			_ = json.Unmarshal(ev.Data, &payload)
			settle(Outcome{
				State:         StateFailed,
				FailureReason: payload.Reason,
				Message:       FailureMessage(payload.Reason),
			})
			return
		}
	}
	// Stream closed without a terminal event; the poll observer keeps going.
}

func (w *Watcher) runPollObserver(ctx context.Context, jobID uuid.UUID, settle func(Outcome)) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			attempts++
			job, err := w.api.GetJob(ctx, jobID)
			if err == nil && job != nil && job.Terminal() {
				settle(outcomeFromJob(job))
				return
			}
			if err != nil {
				// Poll transport errors are absorbed too; only budget
				// exhaustion surfaces.
				w.log.Debug("Poll attempt failed", "job_id", jobID, "attempt", attempts, "error", err)
			}
			if attempts >= w.opts.MaxPolls {
				settle(Outcome{State: StateIndeterminate, Message: indeterminateMessage})
				return
			}
		}
	}
}

func outcomeFromJob(job *Job) Outcome {
	if job.Status == JobStatusFailed {
		return Outcome{
			State:         StateFailed,
			Job:           job,
			FailureReason: job.FailureReason,
			Message:       FailureMessage(job.FailureReason),
		}
	}
	return Outcome{State: StateCompleted, Job: job}
}
