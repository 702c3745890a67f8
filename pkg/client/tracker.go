package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/skillpath-backend/internal/logger"
)

const (
	ToggleReasonUnknownNode        = "unknown node"
	ToggleReasonCompletePrevFirst  = "complete previous nodes first"
	ToggleReasonCompleteLaterFirst = "complete later nodes first to undo this one"
)

var ErrTrackerClosed = errors.New("progress tracker closed")

// ProgressPersister is the slice of the API client the tracker writes through.
type ProgressPersister interface {
	UpdateProgress(ctx context.Context, roadmapID uuid.UUID, completedNodes []string) (*ProgressSnapshot, error)
}

type TrackerOptions struct {
	// DebounceWindow is how long a burst of toggles coalesces before one
	// write fires. Defaults to 800ms.
	DebounceWindow time.Duration
	// OnSync receives the server's authoritative snapshot after each write.
	OnSync      func(ProgressSnapshot)
	OnSyncError func(error)
}

// ProgressTracker keeps the ordered task list and the completed set, enforces
// the contiguous-prefix rule on every toggle, and coalesces bursts of toggles
// into single debounced writes. At most one write is in flight at a time; a
// toggle landing mid-flight re-arms the debounce instead of firing
// concurrently. The server response overwrites local derived fields.
type ProgressTracker struct {
	log       *logger.Logger
	api       ProgressPersister
	roadmapID uuid.UUID

	mu        sync.Mutex
	order     []string
	pos       map[string]int
	completed map[string]bool
	snapshot  ProgressSnapshot
	window    time.Duration
	timer     *time.Timer
	inflight  bool
	dirty     bool
	closed    bool
	wg        sync.WaitGroup

	onSync      func(ProgressSnapshot)
	onSyncError func(error)
}

func NewProgressTracker(api ProgressPersister, log *logger.Logger, roadmapID uuid.UUID, order []string, initial *ProgressSnapshot, opts TrackerOptions) *ProgressTracker {
	window := opts.DebounceWindow
	if window <= 0 {
		window = 800 * time.Millisecond
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	t := &ProgressTracker{
		log:         log.With("component", "ProgressTracker"),
		api:         api,
		roadmapID:   roadmapID,
		order:       append([]string{}, order...),
		pos:         pos,
		completed:   make(map[string]bool, len(order)),
		window:      window,
		onSync:      opts.OnSync,
		onSyncError: opts.OnSyncError,
	}
	if initial != nil {
		t.snapshot = *initial
		for _, id := range initial.CompletedNodes {
			if _, ok := pos[id]; ok {
				t.completed[id] = true
			}
		}
	}
	t.snapshot.TotalNodes = len(order)
	return t
}

// CanToggle validates a toggle against the ordering rule without applying it.
func (t *ProgressTracker) CanToggle(nodeID string) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canToggleLocked(nodeID)
}

func (t *ProgressTracker) canToggleLocked(nodeID string) (bool, string) {
	p, ok := t.pos[nodeID]
	if !ok {
		return false, ToggleReasonUnknownNode
	}
	if !t.completed[nodeID] {
		// Checking: every earlier node must already be complete.
		for i := 0; i < p; i++ {
			if !t.completed[t.order[i]] {
				return false, ToggleReasonCompletePrevFirst
			}
		}
		return true, ""
	}
	// Unchecking: no later node may be complete.
	for i := p + 1; i < len(t.order); i++ {
		if t.completed[t.order[i]] {
			return false, ToggleReasonCompleteLaterFirst
		}
	}
	return true, ""
}

// Toggle re-validates, flips the node optimistically and schedules the
// debounced write.
func (t *ProgressTracker) Toggle(nodeID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTrackerClosed
	}
	if ok, reason := t.canToggleLocked(nodeID); !ok {
		return errors.New(reason)
	}
	if t.completed[nodeID] {
		delete(t.completed, nodeID)
	} else {
		t.completed[nodeID] = true
	}
	t.recomputeLocalLocked()
	t.dirty = true
	t.armLocked()
	return nil
}

// Snapshot returns the current local view. Derived fields reflect the last
// server response when one has arrived, optimistic computation otherwise.
func (t *ProgressTracker) Snapshot() ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.snapshot
	snap.CompletedNodes = t.completedNodesLocked()
	return snap
}

// Flush forces any pending change out immediately, bypassing the debounce.
func (t *ProgressTracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTrackerClosed
	}
	t.stopTimerLocked()
	if !t.dirty {
		t.mu.Unlock()
		return nil
	}
	for t.inflight {
		// Wait for the in-flight write, then re-check dirtiness.
		t.mu.Unlock()
		t.wg.Wait()
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return ErrTrackerClosed
		}
		if !t.dirty {
			t.mu.Unlock()
			return nil
		}
	}
	t.dirty = false
	t.inflight = true
	nodes := t.completedNodesLocked()
	t.mu.Unlock()

	snap, err := t.api.UpdateProgress(ctx, t.roadmapID, nodes)

	t.mu.Lock()
	t.inflight = false
	if err != nil {
		t.dirty = true
		if !t.closed {
			t.armLocked()
		}
		t.mu.Unlock()
		return err
	}
	t.applyServerLocked(snap)
	if t.dirty && !t.closed {
		// A toggle landed while this write was out; its timer deferred to the
		// in-flight write, so schedule the follow-up here.
		t.armLocked()
	}
	t.mu.Unlock()
	if t.onSync != nil {
		t.onSync(*snap)
	}
	return nil
}

// Close is idempotent teardown: it stops the debounce timer and waits out any
// in-flight write. Unflushed toggles are dropped; call Flush first to keep
// them.
func (t *ProgressTracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.stopTimerLocked()
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *ProgressTracker) armLocked() {
	if t.timer == nil {
		t.timer = time.AfterFunc(t.window, t.fire)
		return
	}
	t.timer.Reset(t.window)
}

func (t *ProgressTracker) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *ProgressTracker) fire() {
	t.mu.Lock()
	if t.closed || !t.dirty {
		t.mu.Unlock()
		return
	}
	if t.inflight {
		// The running write's completion re-arms the debounce.
		t.mu.Unlock()
		return
	}
	t.dirty = false
	t.inflight = true
	nodes := t.completedNodesLocked()
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		snap, err := t.api.UpdateProgress(context.Background(), t.roadmapID, nodes)

		t.mu.Lock()
		t.inflight = false
		if err != nil {
			t.log.Warn("Progress write failed, will retry on next debounce", "roadmap_id", t.roadmapID, "error", err)
			t.dirty = true
		} else {
			t.applyServerLocked(snap)
		}
		rearm := t.dirty && !t.closed
		if rearm {
			t.armLocked()
		}
		closed := t.closed
		t.mu.Unlock()

		if err != nil {
			if t.onSyncError != nil && !closed {
				t.onSyncError(err)
			}
			return
		}
		if t.onSync != nil && !closed {
			t.onSync(*snap)
		}
	}()
}

// applyServerLocked adopts the server's derived fields wholesale. The
// completed set itself is only overwritten when no newer local toggle is
// pending, so a mid-flight toggle is not lost.
func (t *ProgressTracker) applyServerLocked(snap *ProgressSnapshot) {
	t.snapshot = *snap
	if t.dirty {
		return
	}
	t.completed = make(map[string]bool, len(snap.CompletedNodes))
	for _, id := range snap.CompletedNodes {
		if _, ok := t.pos[id]; ok {
			t.completed[id] = true
		}
	}
}

func (t *ProgressTracker) completedNodesLocked() []string {
	out := []string{}
	for _, id := range t.order {
		if t.completed[id] {
			out = append(out, id)
		}
	}
	return out
}

// recomputeLocalLocked keeps the optimistic derived fields plausible between
// writes; the next server response overwrites them.
func (t *ProgressTracker) recomputeLocalLocked() {
	count := 0
	for _, id := range t.order {
		if t.completed[id] {
			count++
		}
	}
	t.snapshot.CompletedCount = count
	t.snapshot.TotalNodes = len(t.order)
	if len(t.order) > 0 {
		t.snapshot.Percent = count * 100 / len(t.order)
	} else {
		t.snapshot.Percent = 0
	}
	switch {
	case count == 0:
		t.snapshot.LearningStatus = "not_started"
	case count == len(t.order) && len(t.order) > 0:
		t.snapshot.LearningStatus = "completed"
	default:
		t.snapshot.LearningStatus = "in_progress"
	}
}
