package monitoring

import (
	"net/http"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/infra/server/router"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterExporter mounts the Prometheus exposition endpoint on the engine.
func (s *Service) RegisterExporter(engine *gin.Engine) {
	if !s.IsInitialized() {
		engine.GET(s.Path(), func(c *gin.Context) {
			router.RespondProblem(c, &core.Problem{
				Status: http.StatusServiceUnavailable,
				Detail: "monitoring is disabled",
			})
		})
		return
	}
	handler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	engine.GET(s.Path(), gin.WrapH(handler))
}
