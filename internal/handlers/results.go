// Package handlers serves the pipeline outputs read-only over HTTP.
package handlers

import (
	"errors"
	"net/http"
	"os"

	"journaling-go/internal/analysis"
	"journaling-go/internal/config"
	"journaling-go/internal/filter"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResultsHandler exposes the final snapshots and analysis tables.
type ResultsHandler struct {
	conf *config.Config
	log  *zap.Logger
}

func NewResultsHandler(conf *config.Config, log *zap.Logger) *ResultsHandler {
	return &ResultsHandler{conf: conf, log: log}
}

// Health reports liveness.
func (h *ResultsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ResultsHandler) table(c *gin.Context, path, key string) {
	f, err := frame.ReadCSV(path)
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not available, run the pipeline first"})
		return
	}
	if err != nil {
		h.log.Error("Failed to read table", zap.String("path", path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read table"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": f.Len(), "columns": f.Columns(), key: f.Records()})
}

// Participants returns the final participant-level table.
func (h *ResultsHandler) Participants(c *gin.Context) {
	h.table(c, h.conf.ProcessedPath(models.SnapshotParticipantsFinal), "participants")
}

// Statistics returns the group statistics table.
func (h *ResultsHandler) Statistics(c *gin.Context) {
	h.table(c, h.conf.FiguresPath(analysis.StatisticsFile), "rows")
}

// Report returns the stage reports of the last final-filter run.
func (h *ResultsHandler) Report(c *gin.Context) {
	reports, err := filter.ReadReport(h.conf.ProcessedPath(models.FinalFilterReport))
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not available, run the pipeline first"})
		return
	}
	if err != nil {
		h.log.Error("Failed to read final filter report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read report"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stages": reports})
}
