package server

import (
	"context"

	"github.com/captep/studio/engine/infra/server/appstate"
	"github.com/captep/studio/engine/infra/server/middleware/size"
	"github.com/captep/studio/engine/infra/server/routes"
	introuter "github.com/captep/studio/engine/integration/router"
	wfrouter "github.com/captep/studio/engine/workflow/router"
	"github.com/captep/studio/pkg/config"
	"github.com/captep/studio/pkg/logger"
	"github.com/captep/studio/pkg/version"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(ctx context.Context, router *gin.Engine, state *appstate.State) error {
	cfg := config.FromContext(ctx)
	health := CreateHealthHandler(healthChecks(state), version.GetVersion())
	router.GET("/health", health)

	apiBase := router.Group(routes.Base())
	apiBase.Use(size.BodySizeLimiter(cfg.Server.MaxBodyBytes))
	apiBase.GET("/health", health)
	wfrouter.Register(apiBase, state.Workflows)
	introuter.Register(apiBase, state.Integrations, cfg.Server.CORS.AllowedOrigins)

	logger.FromContext(ctx).Info("Completed route registration", "base", routes.Base())
	return nil
}
