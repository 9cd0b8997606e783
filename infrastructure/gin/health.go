package gin

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus is the status reported by a health check.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const healthCheckTimeout = 5 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  HealthStatus           `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// PingFunc reports whether a dependency answers.
type PingFunc func(ctx context.Context) error

// RegisterHealthRoutes adds GET and HEAD /health. Each check is pinged on
// every GET; any failure makes the service unhealthy.
func RegisterHealthRoutes(router *gin.Engine, cfg *Config, checks map[string]PingFunc) {
	started := time.Now()

	router.GET("/health", func(c *gin.Context) {
		resp := HealthResponse{
			Status:  HealthStatusHealthy,
			Service: cfg.ServiceName,
			Version: cfg.ServiceVersion,
			Uptime:  time.Since(started).Truncate(time.Second).String(),
		}

		if len(checks) > 0 {
			resp.Checks = runChecks(c.Request.Context(), checks)
			for _, result := range resp.Checks {
				if result.Status == HealthStatusUnhealthy {
					resp.Status = HealthStatusUnhealthy
				}
			}
		}

		status := http.StatusOK
		if resp.Status == HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	})
	router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
}

func runChecks(ctx context.Context, checks map[string]PingFunc) map[string]CheckResult {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]CheckResult, len(checks))
	)
	for name, ping := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			result := CheckResult{Status: HealthStatusHealthy}
			if err := ping(ctx); err != nil {
				result.Status = HealthStatusUnhealthy
				result.Message = err.Error()
			}
			result.Latency = time.Since(start).String()

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}
