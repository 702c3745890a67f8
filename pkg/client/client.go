// Package client is the Go SDK for the skillpath API. It carries the
// dual-channel job watcher (SSE push plus poll fallback), the sequential
// progress tracker with debounced persistence, and thin typed wrappers over
// the HTTP surface.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/skillpath-backend/internal/logger"
)

const (
	JobKindChatMessage        = "chat_message"
	JobKindCoverLetter        = "cover_letter"
	JobKindRoadmap            = "roadmap"
	JobKindCapstoneSubmission = "capstone_submission"
)

const (
	JobStatusPending   = "pending"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job mirrors the wire shape of a generation job.
type Job struct {
	ID            uuid.UUID  `json:"id"`
	OwnerUserID   uuid.UUID  `json:"owner_user_id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	ResultRef     string     `json:"result_ref,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
}

func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ProgressSnapshot is the server-recomputed progress state; its derived
// fields are authoritative and overwrite any local computation.
type ProgressSnapshot struct {
	CompletedNodes []string `json:"completed_nodes"`
	CompletedCount int      `json:"completed_count"`
	TotalNodes     int      `json:"total_nodes"`
	Percent        int      `json:"percent"`
	LearningStatus string   `json:"learning_status"`
}

type CapstoneSubmission struct {
	ID              uuid.UUID `json:"id"`
	RoadmapID       uuid.UUID `json:"roadmap_id"`
	GithubURL       string    `json:"github_url"`
	Verdict         string    `json:"verdict"`
	Score           int       `json:"score"`
	OverallFeedback string    `json:"overall_feedback"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

type CapstoneOutcome struct {
	Submission     *CapstoneSubmission `json:"submission"`
	CapstoneStatus string              `json:"capstone_status"`
	LearningStatus string              `json:"learning_status"`
}

// StreamEvent is one named event off a job's SSE channel.
type StreamEvent struct {
	Event string
	Data  json.RawMessage
}

// APIError is the server's error envelope surfaced as a Go error.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	log          *logger.Logger
	baseURL      string
	token        string
	httpClient   *http.Client
	streamClient *http.Client
}

func New(baseURL, token string, log *logger.Logger) *Client {
	return &Client{
		log:     log.With("component", "APIClient"),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// httpClient.Timeout covers reading the response body, which would
		// cut every open stream at 30s, so streams go through a client
		// without one; cancellation flows through the request context.
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}
}

func (c *Client) CreateJob(ctx context.Context, kind string, input map[string]any) (*Job, error) {
	var out struct {
		Job *Job `json:"job"`
	}
	body := map[string]any{"kind": kind, "input": input}
	if err := c.doJSON(ctx, http.MethodPost, "/api/jobs", body, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

func (c *Client) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	var out struct {
		Job *Job `json:"job"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs/"+jobID.String(), nil, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

func (c *Client) UpdateProgress(ctx context.Context, roadmapID uuid.UUID, completedNodes []string) (*ProgressSnapshot, error) {
	if completedNodes == nil {
		completedNodes = []string{}
	}
	var out ProgressSnapshot
	body := map[string]any{"completed_nodes": completedNodes}
	if err := c.doJSON(ctx, http.MethodPatch, "/api/roadmaps/"+roadmapID.String()+"/progress", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

var githubRepoPattern = regexp.MustCompile(`^https://github\.com/[A-Za-z0-9][A-Za-z0-9-]*/[A-Za-z0-9._-]+/?$`)

var ErrInvalidGithubURL = errors.New("github url must look like https://github.com/{owner}/{repo}")

// SubmitCapstone rejects a malformed repository URL locally, before any
// request is issued; the server applies the same check.
func (c *Client) SubmitCapstone(ctx context.Context, roadmapID uuid.UUID, githubURL string) (*CapstoneOutcome, error) {
	if !githubRepoPattern.MatchString(githubURL) {
		return nil, ErrInvalidGithubURL
	}
	var out CapstoneOutcome
	body := map[string]any{"github_url": githubURL}
	if err := c.doJSON(ctx, http.MethodPost, "/api/roadmaps/"+roadmapID.String()+"/capstone-submissions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatMessage is a provisional chat entry tracked through an EntryLog until
// its generation job is accepted.
type ChatMessage struct {
	Text  string
	JobID uuid.UUID
}

// SendChatMessage applies the provisional entry before the network call and,
// on failure, reverts that same entry by reference rather than by value.
func (c *Client) SendChatMessage(ctx context.Context, entries *EntryLog, text string) (*Job, *Entry, error) {
	entry := entries.Apply(&ChatMessage{Text: text})
	job, err := c.CreateJob(ctx, JobKindChatMessage, map[string]any{"text": text})
	if err != nil {
		entries.Revert(entry)
		return nil, nil, err
	}
	if msg, ok := entry.Value.(*ChatMessage); ok {
		msg.JobID = job.ID
	}
	entries.Commit(entry)
	return job, entry, nil
}

// StreamJob opens the job's push channel. The returned channel closes when
// the stream ends for any reason; transport errors are not reported through
// it, callers fall back to polling.
func (c *Client) StreamJob(ctx context.Context, jobID uuid.UUID) (<-chan StreamEvent, error) {
	url := c.baseURL + "/api/jobs/" + jobID.String() + "/stream?token=" + c.token
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.decodeError(resp)
	}

	events := make(chan StreamEvent, 4)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		readSSE(resp.Body, events)
	}()
	return events, nil
}

// readSSE parses named server-sent events. Comment lines (heartbeats) are
// skipped; a blank line dispatches the accumulated event.
func readSSE(r io.Reader, events chan<- StreamEvent) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 16*1024), 1024*1024)

	var event string
	var data bytes.Buffer
	flush := func() {
		if event == "" && data.Len() == 0 {
			return
		}
		payload := make([]byte, data.Len())
		copy(payload, data.Bytes())
		events <- StreamEvent{Event: event, Data: payload}
		event = ""
		data.Reset()
	}
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// heartbeat comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	flush()
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var envelope struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr := envelope.Error
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}
