package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/requestdata"
	"github.com/yungbote/skillpath-backend/internal/services"
	"github.com/yungbote/skillpath-backend/internal/sse"
	"github.com/yungbote/skillpath-backend/internal/types"
)

type JobsHandler struct {
	log  *logger.Logger
	jobs services.JobService
	hub  *sse.SSEHub
}

func NewJobsHandler(log *logger.Logger, jobs services.JobService, hub *sse.SSEHub) *JobsHandler {
	return &JobsHandler{
		log:  log.With("handler", "JobsHandler"),
		jobs: jobs,
		hub:  hub,
	}
}

// POST /api/jobs
func (h *JobsHandler) CreateJob(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", errors.New("not authenticated"))
		return
	}
	var req struct {
		Kind  string         `json:"kind"`
		Input map[string]any `json:"input"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	job, err := h.jobs.CreateJob(c.Request.Context(), rd.UserID, req.Kind, req.Input)
	if err != nil {
		if errors.Is(err, services.ErrUnknownJobKind) {
			RespondError(c, http.StatusBadRequest, "unknown_job_kind", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "job_create_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// GET /api/jobs/:id is the poll observer's read.
func (h *JobsHandler) GetJobByID(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", errors.New("not authenticated"))
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.GetJobForOwner(c.Request.Context(), rd.UserID, jobID)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "job_lookup_failed", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// GET /api/jobs/:id/stream is the push channel. Emits `connected` on open,
// then either `completed` or `failed` when the job settles. A stream opened
// after settlement receives only `connected`; the client's poll fallback
// covers that window.
func (h *JobsHandler) StreamJob(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", errors.New("not authenticated"))
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	if _, err := h.jobs.GetJobForOwner(c.Request.Context(), rd.UserID, jobID); err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "job_lookup_failed", err)
		return
	}

	channel := sse.JobChannel(jobID)
	client := h.hub.NewSSEClient(rd.UserID)
	h.hub.AddChannel(client, channel)
	h.hub.Send(client, sse.SSEMessage{
		Channel: channel,
		Event:   sse.SSEEventConnected,
		Data:    map[string]any{"job_id": jobID},
	})

	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.hub.CloseClient(client)
}

// WorkerHandler receives settlement callbacks from the external generation
// worker. It is the only writer of terminal job state; repeated callbacks for
// an already-terminal job are acknowledged without effect.
type WorkerHandler struct {
	log  *logger.Logger
	jobs services.JobService
}

func NewWorkerHandler(log *logger.Logger, jobs services.JobService) *WorkerHandler {
	return &WorkerHandler{
		log:  log.With("handler", "WorkerHandler"),
		jobs: jobs,
	}
}

// POST /internal/jobs/:id/complete
func (h *WorkerHandler) CompleteJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req struct {
		ResultRef string `json:"result_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	job, err := h.jobs.SettleCompleted(c.Request.Context(), jobID, req.ResultRef)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "job_settle_failed", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// POST /internal/jobs/:id/fail
func (h *WorkerHandler) FailJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.Reason != "" && !types.ValidFailureReason(req.Reason) {
		RespondError(c, http.StatusBadRequest, "unknown_failure_reason", errors.New("unknown failure reason"))
		return
	}
	job, err := h.jobs.SettleFailed(c.Request.Context(), jobID, req.Reason)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "job_settle_failed", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}
