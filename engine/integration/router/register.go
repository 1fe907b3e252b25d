package introuter

import (
	"github.com/captep/studio/engine/integration/uc"
	"github.com/gin-gonic/gin"
)

func Register(apiBase *gin.RouterGroup, factory *uc.Factory, allowedOrigins []string) {
	handler := NewHandler(factory, allowedOrigins)
	group := apiBase.Group("/integration")
	{
		// POST /api/v0/integration/authorize
		group.POST("/authorize", handler.Authorize)

		// GET /api/v0/integration/oauth/:platform/callback
		// Redirect target registered with every provider
		group.GET("/oauth/:platform/callback", handler.Callback)

		// POST /api/v0/integration/connections
		group.POST("/connections", handler.Finalize)

		// GET /api/v0/integration/authorizations/:state
		// Long poll for the outcome of a popup authorization
		group.GET("/authorizations/:state", handler.Await)
	}
}
