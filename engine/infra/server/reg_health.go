package server

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/captep/studio/engine/infra/server/appstate"
	"github.com/captep/studio/pkg/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

func healthChecks(state *appstate.State) map[string]HealthCheck {
	checks := map[string]HealthCheck{
		"database": state.Store.HealthCheck,
	}
	if state.Redis != nil {
		checks["redis"] = state.Redis.HealthCheck
	}
	return checks
}

// Health endpoint
//
//	@Summary      Get server health
//	@Description  Probes the database and, when enabled, Redis
//	@Tags         health
//	@Produce      json
//	@Success      200 {object} map[string]interface{} "Service is healthy"
//	@Failure      503 {object} map[string]interface{} "A dependency is down"
//	@Router       /api/v0/health [get]
func CreateHealthHandler(checks map[string]HealthCheck, version string) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		results := make([]error, len(names))
		var g errgroup.Group
		for i, name := range names {
			g.Go(func() error {
				results[i] = checks[name](ctx)
				return nil
			})
		}
		_ = g.Wait()
		ready := true
		components := gin.H{}
		for i, name := range names {
			if err := results[i]; err != nil {
				ready = false
				logger.FromContext(ctx).Warn("Health check failed", "component", name, "error", err)
				components[name] = gin.H{"healthy": false, "error": err.Error()}
				continue
			}
			components[name] = gin.H{"healthy": true}
		}
		status := "healthy"
		code := http.StatusOK
		if !ready {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"data": gin.H{
				"status":     status,
				"version":    version,
				"ready":      ready,
				"components": components,
			},
			"message": "Success",
		})
	}
}
