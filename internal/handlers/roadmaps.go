package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/requestdata"
	"github.com/yungbote/skillpath-backend/internal/services"
	"github.com/yungbote/skillpath-backend/internal/types"
)

type RoadmapsHandler struct {
	log      *logger.Logger
	progress services.ProgressService
	capstone services.CapstoneService
}

func NewRoadmapsHandler(log *logger.Logger, progress services.ProgressService, capstone services.CapstoneService) *RoadmapsHandler {
	return &RoadmapsHandler{
		log:      log.With("handler", "RoadmapsHandler"),
		progress: progress,
		capstone: capstone,
	}
}

// GET /api/roadmaps/:id/progress
func (h *RoadmapsHandler) GetProgress(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", errors.New("not authenticated"))
		return
	}
	roadmapID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_roadmap_id", err)
		return
	}
	row, err := h.progress.GetForOwner(c.Request.Context(), rd.UserID, roadmapID)
	if err != nil {
		if errors.Is(err, services.ErrRoadmapNotFound) {
			RespondError(c, http.StatusNotFound, "roadmap_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "progress_lookup_failed", err)
		return
	}
	RespondOK(c, progressPayload(row))
}

// PATCH /api/roadmaps/:id/progress carries the full resulting completed set.
// The response holds the server-recomputed derived fields the client must
// adopt.
func (h *RoadmapsHandler) UpdateProgress(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", errors.New("not authenticated"))
		return
	}
	roadmapID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_roadmap_id", err)
		return
	}
	var req struct {
		CompletedNodes []string `json:"completed_nodes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	row, err := h.progress.UpdateProgress(c.Request.Context(), rd.UserID, roadmapID, req.CompletedNodes)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRoadmapNotFound):
			RespondError(c, http.StatusNotFound, "roadmap_not_found", err)
		case errors.Is(err, services.ErrUnknownNode):
			RespondError(c, http.StatusBadRequest, "unknown_node", err)
		case errors.Is(err, services.ErrProgressGap):
			RespondError(c, http.StatusUnprocessableEntity, "progress_gap", err)
		default:
			RespondError(c, http.StatusInternalServerError, "progress_update_failed", err)
		}
		return
	}
	RespondOK(c, progressPayload(row))
}

// POST /api/roadmaps/:id/capstone-submissions
func (h *RoadmapsHandler) SubmitCapstone(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", errors.New("not authenticated"))
		return
	}
	roadmapID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_roadmap_id", err)
		return
	}
	var req struct {
		GithubURL string `json:"github_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	result, err := h.capstone.Submit(c.Request.Context(), rd.UserID, roadmapID, req.GithubURL)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidGithubURL):
			RespondError(c, http.StatusBadRequest, "invalid_github_url", err)
		case errors.Is(err, services.ErrRoadmapNotFound):
			RespondError(c, http.StatusNotFound, "roadmap_not_found", err)
		case errors.Is(err, services.ErrNoCapstone):
			RespondError(c, http.StatusConflict, "no_capstone", err)
		case errors.Is(err, services.ErrTasksIncomplete):
			RespondError(c, http.StatusConflict, "tasks_incomplete", err)
		case errors.Is(err, services.ErrReviewTimeout):
			RespondError(c, http.StatusGatewayTimeout, "review_timeout", err)
		default:
			RespondError(c, http.StatusInternalServerError, "capstone_submit_failed", err)
		}
		return
	}
	RespondOK(c, gin.H{
		"submission":      result.Submission,
		"capstone_status": result.CapstoneStatus,
		"learning_status": result.LearningStatus,
	})
}

// GET /api/roadmaps/:id/capstone-submissions
func (h *RoadmapsHandler) CapstoneHistory(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", errors.New("not authenticated"))
		return
	}
	roadmapID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_roadmap_id", err)
		return
	}
	rows, err := h.capstone.History(c.Request.Context(), rd.UserID, roadmapID)
	if err != nil {
		if errors.Is(err, services.ErrRoadmapNotFound) {
			RespondError(c, http.StatusNotFound, "roadmap_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "capstone_history_failed", err)
		return
	}
	RespondOK(c, gin.H{"submissions": rows})
}

func progressPayload(row *types.RoadmapProgress) gin.H {
	nodes, err := services.DecodeCompletedNodes(row)
	if err != nil {
		nodes = []string{}
	}
	return gin.H{
		"completed_nodes": nodes,
		"completed_count": row.CompletedCount,
		"total_nodes":     row.TotalNodes,
		"percent":         row.Percent,
		"learning_status": row.LearningStatus,
	}
}
