package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/types"
)

type ReviewRequest struct {
	GithubURL     string   `json:"github_url"`
	CapstoneTitle string   `json:"capstone_title,omitempty"`
	Requirements  []string `json:"requirements"`
}

type ReviewResult struct {
	Verdict            string                    `json:"verdict"` // pass|partial|fail
	Score              int                       `json:"score"`
	RequirementResults []types.RequirementResult `json:"requirement_results"`
	Strengths          []string                  `json:"strengths"`
	Improvements       []string                  `json:"improvements"`
	OverallFeedback    string                    `json:"overall_feedback"`
}

// CapstoneReviewer is the external long-latency code-review collaborator.
// Reviews are observed to take up to ~2 minutes, so the HTTP implementation
// carries a generous client timeout.
type CapstoneReviewer interface {
	Review(ctx context.Context, req ReviewRequest) (*ReviewResult, error)
}

type reviewerClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewReviewerClient(log *logger.Logger) (CapstoneReviewer, error) {
	apiKey := os.Getenv("REVIEWER_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing REVIEWER_API_KEY")
	}

	baseURL := os.Getenv("REVIEWER_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.skillpath.dev/reviewer"
	}

	// IMPORTANT: reviews regularly run close to two minutes
	timeoutSec := 150
	if v := os.Getenv("REVIEWER_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &reviewerClient{
		log:        log.With("service", "ReviewerClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

type reviewerHTTPError struct {
	StatusCode int
	Body       string
}

func (e *reviewerHTTPError) Error() string {
	return fmt.Sprintf("reviewer http %d: %s", e.StatusCode, e.Body)
}

func (c *reviewerClient) Review(ctx context.Context, req ReviewRequest) (*ReviewResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/code-reviews", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &reviewerHTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result ReviewResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode reviewer response: %w", err)
	}
	c.log.Info("Capstone review finished",
		"verdict", result.Verdict,
		"score", result.Score,
		"elapsed", time.Since(start).String(),
	)
	return &result, nil
}
