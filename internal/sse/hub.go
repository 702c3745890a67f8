package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/skillpath-backend/internal/logger"
)

type SSEEvent string

// Named events on a job channel. Connected is liveness only; Completed and
// Failed report the job's terminal transition. There is no replay: a client
// that subscribes after settlement receives nothing here and must poll.
const (
	SSEEventConnected SSEEvent = "connected"
	SSEEventCompleted SSEEvent = "completed"
	SSEEventFailed    SSEEvent = "failed"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

type SSEClient struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Channels  map[string]bool
	Outbound  chan SSEMessage
	done      chan struct{}
	closeOnce sync.Once
	Logger    *logger.Logger
}

type SSEHub struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	subscriptions map[string]map[*SSEClient]bool
}

// JobChannel names the per-job channel a settlement is broadcast on.
func JobChannel(jobID uuid.UUID) string {
	return "job:" + jobID.String()
}

func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		logger:        log.With("component", "SSEHub"),
		subscriptions: make(map[string]map[*SSEClient]bool),
	}
}

func (hub *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
	id := uuid.New()
	return &SSEClient{
		ID:       id,
		UserID:   userID,
		Channels: make(map[string]bool),
		Outbound: make(chan SSEMessage, 10),
		done:     make(chan struct{}),
		Logger:   hub.logger.With("clientID", id),
	}
}

func (hub *SSEHub) AddChannel(client *SSEClient, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}

	client.Channels[channel] = true

	clients, exists := hub.subscriptions[channel]
	if !exists {
		clients = make(map[*SSEClient]bool)
		hub.subscriptions[channel] = clients
	}
	clients[client] = true

	hub.logger.Debug("SSE client subscribed", "clientID", client.ID, "channel", channel)
}

func (hub *SSEHub) RemoveChannel(client *SSEClient, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	delete(client.Channels, channel)

	if subMap, ok := hub.subscriptions[channel]; ok {
		delete(subMap, client)
		if len(subMap) == 0 {
			delete(hub.subscriptions, channel)
		}
	}
	hub.logger.Debug("SSE client unsubscribed from channel", "clientID", client.ID, "channel", channel)
}

func (hub *SSEHub) RemoveClient(client *SSEClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for ch := range client.Channels {
		if subMap, ok := hub.subscriptions[ch]; ok {
			delete(subMap, client)
			if len(subMap) == 0 {
				delete(hub.subscriptions, ch)
			}
		}
	}
	client.Channels = make(map[string]bool)
	hub.logger.Debug("SSE client unsubscribed from all channels", "clientID", client.ID)
}

func (hub *SSEHub) Broadcast(msg SSEMessage) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if msg.Channel == "" {
		return
	}
	clientsMap, ok := hub.subscriptions[msg.Channel]
	if !ok {
		return
	}
	for c := range clientsMap {
		select {
		case c.Outbound <- msg:
		default:
			hub.logger.Warn("Dropping SSE message; outbound buffer full", "clientID", c.ID)
		}
	}
}

// Send enqueues a message directly to one client, bypassing channel fan-out.
// Used for the initial connected acknowledgement on stream open.
func (hub *SSEHub) Send(client *SSEClient, msg SSEMessage) {
	select {
	case client.Outbound <- msg:
	default:
		hub.logger.Warn("Dropping direct SSE message; outbound buffer full", "clientID", client.ID)
	}
}

func (hub *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *SSEClient) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			hub.logger.Debug("SSE client context done", "clientID", client.ID, "err", ctx.Err())
			return
		case <-client.done:
			// Channel is being closed after settlement; flush anything still
			// buffered so the terminal event is not lost on the way out.
			for {
				select {
				case msg := <-client.Outbound:
					writeSSEMessage(w, flusher, client, msg)
				default:
					return
				}
			}
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-client.Outbound:
			writeSSEMessage(w, flusher, client, msg)
		}
	}
}

func writeSSEMessage(w http.ResponseWriter, flusher http.Flusher, client *SSEClient, msg SSEMessage) {
	jsonBytes, err := json.Marshal(msg.Data)
	if err != nil {
		client.Logger.Warn("Failed to marshal SSE message", "error", err)
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", msg.Event)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", string(jsonBytes))
	flusher.Flush()
}

// CloseClient is idempotent; both the stream handler and CloseChannel may
// race to tear the same client down.
func (hub *SSEHub) CloseClient(client *SSEClient) {
	client.closeOnce.Do(func() {
		close(client.done)
	})
	hub.RemoveClient(client)
}

// CloseChannel tears down every subscriber of a channel. Called once a job
// settles; each client's stream drains its buffer and disconnects, other
// channels the clients were on are unaffected only if they had none (job
// streams subscribe to exactly one channel).
func (hub *SSEHub) CloseChannel(channel string) {
	hub.mu.Lock()
	clients := make([]*SSEClient, 0, len(hub.subscriptions[channel]))
	for c := range hub.subscriptions[channel] {
		clients = append(clients, c)
	}
	hub.mu.Unlock()

	for _, c := range clients {
		hub.CloseClient(c)
	}
}
