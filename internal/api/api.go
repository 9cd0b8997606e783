// Package api implements the HTTP API for the mirror service.
package api

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/database"
	"github.com/jonesrussell/north-cloud/mirror/internal/mirror"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// Mirrorer runs mirror requests.
type Mirrorer interface {
	Run(ctx context.Context, req mirror.Request) (*mirror.Report, error)
}

// RunLister reads run history.
type RunLister interface {
	GetByID(ctx context.Context, id string) (*database.Run, error)
	List(ctx context.Context, limit int) ([]*database.Run, error)
}

// Handler serves the /api/v1 routes. Runs may be nil when no database is
// configured; the history endpoints then answer 503.
type Handler struct {
	mirrors Mirrorer
	runs    RunLister
	log     logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(mirrors Mirrorer, runs RunLister, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{mirrors: mirrors, runs: runs, log: log}
}

// RegisterRoutes mounts the API under /api/v1.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.POST("/mirrors", h.CreateMirror)
	v1.GET("/runs", h.ListRuns)
	v1.GET("/runs/:id", h.GetRun)
}

func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
