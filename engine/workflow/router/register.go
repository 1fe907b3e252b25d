package wfrouter

import (
	"github.com/captep/studio/engine/workflow/uc"
	"github.com/gin-gonic/gin"
)

func Register(apiBase *gin.RouterGroup, factory *uc.Factory) {
	h := NewHandler(factory)
	workflowsGroup := apiBase.Group("/workflows")
	{
		// GET /api/v0/workflows
		workflowsGroup.GET("", h.List)

		// POST /api/v0/workflows
		// Create a workflow from an editor document
		workflowsGroup.POST("", h.Create)

		// GET /api/v0/workflows/:workflow_id
		workflowsGroup.GET("/:workflow_id", h.Get)

		// PUT /api/v0/workflows/:workflow_id
		// Save a new version of the graph
		workflowsGroup.PUT("/:workflow_id", h.Update)

		// POST /api/v0/workflows/:workflow_id/compile
		// Refresh credentials, compile and hand off to the runtime
		workflowsGroup.POST("/:workflow_id/compile", h.Compile)

		// POST /api/v0/workflows/:workflow_id/cancel
		workflowsGroup.POST("/:workflow_id/cancel", h.Cancel)
	}
}
