package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/database"
)

// ListRuns handles GET /api/v1/runs
func (h *Handler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		respondError(c, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	runs, err := h.runs.List(c.Request.Context(), parseLimit(c))
	if err != nil {
		logger.FromContext(c.Request.Context(), h.log).Error("Failed to list runs", logger.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to retrieve runs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// GetRun handles GET /api/v1/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	if h.runs == nil {
		respondError(c, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(c, http.StatusNotFound, "run not found")
		return
	}

	run, err := h.runs.GetByID(c.Request.Context(), id)
	if errors.Is(err, database.ErrRunNotFound) {
		respondError(c, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		logger.FromContext(c.Request.Context(), h.log).Error("Failed to get run",
			logger.String("run_id", id),
			logger.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to retrieve run")
		return
	}

	c.JSON(http.StatusOK, run)
}
