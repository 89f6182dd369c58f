package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/hubexport/internal/domain"
	"github.com/timmy/hubexport/internal/logger"
)

// RunLister reads the persisted run history.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.WorkflowRun, error)
	GetByID(ctx context.Context, id string) (*domain.WorkflowRun, error)
}

// RunsHandler exposes the status of past and current runs.
type RunsHandler struct {
	runs RunLister
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runs RunLister) *RunsHandler {
	return &RunsHandler{runs: runs}
}

// RunListResponse represents the list runs API response.
type RunListResponse struct {
	Runs  []domain.WorkflowRun `json:"runs"`
	Total int                  `json:"total"`
}

// ListRuns handles GET /api/v1/runs?limit=N.
func (h *RunsHandler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to list runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, RunListResponse{Runs: runs, Total: len(runs)})
}

// GetRun handles GET /api/v1/runs/:id.
func (h *RunsHandler) GetRun(c *gin.Context) {
	run, err := h.runs.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to get run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get run"})
		return
	}
	c.JSON(http.StatusOK, run)
}
