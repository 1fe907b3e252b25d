package server

import (
	"fmt"
	"strings"

	"github.com/captep/studio/engine/infra/server/appstate"
	"github.com/captep/studio/engine/infra/server/middleware/ratelimit"
	"github.com/captep/studio/engine/infra/server/routes"
	"github.com/captep/studio/pkg/config"
	"github.com/captep/studio/pkg/logger"
	"github.com/captep/studio/pkg/version"
	"github.com/gin-gonic/gin"
)

func (s *Server) buildRouter(state *appstate.State) error {
	cfg := config.FromContext(s.ctx)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	if s.monitoring != nil && s.monitoring.IsInitialized() {
		r.Use(s.monitoring.GinMiddleware())
	}
	r.Use(LoggerMiddleware(logger.FromContext(s.ctx)))
	if len(cfg.Server.CORS.AllowedOrigins) > 0 {
		r.Use(CORSMiddleware(cfg.Server.CORS))
	}
	if cfg.RateLimit.Enabled {
		if err := s.useRateLimiter(r, cfg); err != nil {
			return err
		}
	}
	r.Use(appstate.StateMiddleware(state))
	if s.monitoring != nil && s.monitoring.IsInitialized() {
		s.monitoring.RegisterExporter(r)
	}
	if err := RegisterRoutes(s.ctx, r, state); err != nil {
		return err
	}
	s.router = r
	return nil
}

func (s *Server) useRateLimiter(r *gin.Engine, cfg *config.Config) error {
	log := logger.FromContext(s.ctx)
	limitCfg := ratelimit.FromAppConfig(&cfg.RateLimit, routes.Authorize())
	limitCfg.ExcludedPaths = append(limitCfg.ExcludedPaths, cfg.Monitoring.Path)
	client := s.RedisClient()
	var manager *ratelimit.Manager
	var err error
	if s.monitoring != nil && s.monitoring.IsInitialized() {
		manager, err = ratelimit.NewManagerWithMetrics(limitCfg, client, s.monitoring.Meter())
	} else {
		manager, err = ratelimit.NewManager(limitCfg, client)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiting: %w", err)
	}
	r.Use(manager.Middleware())
	driver := driverMemory
	if client != nil {
		driver = driverRedis
	}
	log.Info("Rate limiter initialized",
		"driver", driver,
		"limit", limitCfg.GlobalRate.Limit,
		"period", limitCfg.GlobalRate.Period,
	)
	return nil
}

func (s *Server) logStartupBanner() {
	host := friendlyHost(s.serverConfig.Host)
	httpURL := fmt.Sprintf("http://%s:%d", host, s.serverConfig.Port)
	lines := []string{
		fmt.Sprintf("Studio %s", version.GetVersion()),
		fmt.Sprintf("  API      > %s%s", httpURL, routes.Base()),
		fmt.Sprintf("  Health   > %s%s", httpURL, routes.HealthVersioned()),
	}
	if s.monitoring != nil && s.monitoring.IsInitialized() {
		lines = append(lines, fmt.Sprintf("  Metrics  > %s%s", httpURL, s.monitoring.Path()))
	}
	logger.FromContext(s.ctx).Info("\n" + strings.Join(lines, "\n"))
}

func friendlyHost(h string) string {
	if h == hostAny || h == "::" || h == "" {
		return hostLoopback
	}
	return h
}
