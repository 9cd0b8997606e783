package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/mirror"
)

// CreateMirror handles POST /api/v1/mirrors. The run is synchronous; the
// response carries the report of the finished run.
func (h *Handler) CreateMirror(c *gin.Context) {
	var req mirror.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	report, err := h.mirrors.Run(c.Request.Context(), req)
	switch {
	case errors.Is(err, mirror.ErrInvalidURL):
		respondError(c, http.StatusBadRequest, err.Error())
	case err != nil && report == nil:
		logger.FromContext(c.Request.Context(), h.log).Error("Mirror request failed", logger.Error(err))
		respondError(c, http.StatusInternalServerError, "mirror failed")
	case err != nil:
		c.JSON(http.StatusBadGateway, report)
	default:
		c.JSON(http.StatusCreated, report)
	}
}
