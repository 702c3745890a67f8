package services

import (
	"context"

	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/sse"
	"github.com/yungbote/skillpath-backend/internal/types"
)

// JobNotifier reports a job's terminal transition on the job's channel.
// Delivery is best-effort and at-least-once for connected observers; the
// notifier never mutates job state, and the channel is closed after the
// terminal event so late subscribers fall back to polling.
type JobNotifier interface {
	JobCompleted(ctx context.Context, job *types.Job)
	JobFailed(ctx context.Context, job *types.Job, reason string)
}

type jobNotifier struct {
	log *logger.Logger
	hub *sse.SSEHub
	bus SSEBus
}

// NewJobNotifier builds a notifier over the local hub. When bus is non-nil,
// events go through it instead and reach this replica's hub via the
// forwarder, so a message is never delivered twice locally.
func NewJobNotifier(log *logger.Logger, hub *sse.SSEHub, bus SSEBus) JobNotifier {
	return &jobNotifier{
		log: log.With("service", "JobNotifier"),
		hub: hub,
		bus: bus,
	}
}

func (n *jobNotifier) JobCompleted(ctx context.Context, job *types.Job) {
	n.emit(ctx, sse.SSEMessage{
		Channel: sse.JobChannel(job.ID),
		Event:   sse.SSEEventCompleted,
		Data:    map[string]any{"job_id": job.ID},
	})
}

func (n *jobNotifier) JobFailed(ctx context.Context, job *types.Job, reason string) {
	n.emit(ctx, sse.SSEMessage{
		Channel: sse.JobChannel(job.ID),
		Event:   sse.SSEEventFailed,
		Data:    map[string]any{"job_id": job.ID, "reason": reason},
	})
}

func (n *jobNotifier) emit(ctx context.Context, msg sse.SSEMessage) {
	if n.bus != nil {
		err := n.bus.Publish(ctx, msg)
		if err == nil {
			return
		}
		n.log.Warn("SSE bus publish failed, falling back to local broadcast", "channel", msg.Channel, "error", err)
	}
	n.hub.Broadcast(msg)
	n.hub.CloseChannel(msg.Channel)
}
