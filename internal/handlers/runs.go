package handlers

import (
	"context"
	"net/http"
	"strconv"

	"journaling-go/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultRunLimit = 20

// RunLister reads archived pipeline runs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]models.PipelineRun, error)
}

// RunsHandler lists archived runs. A nil store means the archive is disabled.
type RunsHandler struct {
	store RunLister
	log   *zap.Logger
}

func NewRunsHandler(store RunLister, log *zap.Logger) *RunsHandler {
	return &RunsHandler{store: store, log: log}
}

func (h *RunsHandler) List(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run archive is disabled"})
		return
	}
	limit := defaultRunLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("Failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
