package wfrouter

import (
	"errors"
	"net/http"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/graph"
	"github.com/captep/studio/engine/infra/server/router"
	"github.com/captep/studio/engine/runtime"
	"github.com/captep/studio/engine/workflow"
	"github.com/captep/studio/engine/workflow/uc"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	factory *uc.Factory
}

func NewHandler(factory *uc.Factory) *Handler {
	return &Handler{factory: factory}
}

// List returns workflow summaries with cursor pagination.
func (h *Handler) List(c *gin.Context) {
	limit := router.LimitOrDefault(c.Query("limit"), uc.DefaultListLimit, uc.MaxListLimit)
	after, err := router.DecodeCursor(c.Query("cursor"))
	if err != nil {
		router.RespondCode(c, router.ErrBadRequestCode, "invalid cursor parameter")
		return
	}
	out, err := h.factory.List(&uc.ListInput{
		CreatedBy: c.Query("created_by"),
		After:     core.ID(after),
		Limit:     limit,
	}).Execute(c.Request.Context())
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	next := router.EncodeCursor(out.Next.String())
	router.SetNextLink(c, next)
	c.JSON(http.StatusOK, WorkflowsListResponse{Workflows: out.Items, NextCursor: next})
}

// Create stores a new workflow and returns the ids assigned to its nodes.
func (h *Handler) Create(c *gin.Context) {
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		router.RespondCode(c, router.ErrValidationCode, err.Error())
		return
	}
	h.save(c, "", &req)
}

// Update saves a new version of an existing workflow.
func (h *Handler) Update(c *gin.Context) {
	id, ok := workflowID(c)
	if !ok {
		return
	}
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		router.RespondCode(c, router.ErrValidationCode, err.Error())
		return
	}
	h.save(c, id, &req)
}

func (h *Handler) save(c *gin.Context, id core.ID, req *SaveRequest) {
	out, err := h.factory.Save(&uc.SaveInput{
		WorkflowID: id,
		Document:   &req.Document,
		CreatedBy:  req.CreatedBy,
	}).Execute(c.Request.Context())
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	status := http.StatusOK
	if id.IsZero() {
		status = http.StatusCreated
	}
	c.JSON(status, out)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := workflowID(c)
	if !ok {
		return
	}
	out, err := h.factory.Load(id).Execute(c.Request.Context())
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Compile(c *gin.Context) {
	id, ok := workflowID(c)
	if !ok {
		return
	}
	out, err := h.factory.Compile(id).Execute(c.Request.Context())
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := workflowID(c)
	if !ok {
		return
	}
	if err := h.factory.Cancel(id).Execute(c.Request.Context()); err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": true, "workflow_id": id})
}

func workflowID(c *gin.Context) (core.ID, bool) {
	id, err := core.ParseID(c.Param("workflow_id"))
	if err != nil {
		router.RespondCode(c, router.ErrBadRequestCode, "invalid workflow id")
		return "", false
	}
	return id, true
}

func respondWorkflowError(c *gin.Context, err error) {
	var ce *workflow.CompileError
	if errors.As(err, &ce) {
		respondCompileError(c, ce)
		return
	}
	switch {
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		router.RespondCode(c, router.ErrNotFoundCode, err.Error())
	case errors.Is(err, runtime.ErrCancelUnsupported):
		router.RespondCode(c, router.ErrNotImplementedCode, err.Error())
	case errors.Is(err, uc.ErrInvalidDocument),
		errors.Is(err, graph.ErrUnknownNodeType),
		errors.Is(err, graph.ErrInvalidNodeData):
		router.RespondCode(c, router.ErrValidationCode, err.Error())
	default:
		router.RespondCode(c, router.ErrInternalCode, err.Error())
	}
}

// respondCompileError uses the compile kind as the problem code.
func respondCompileError(c *gin.Context, ce *workflow.CompileError) {
	status := http.StatusServiceUnavailable
	switch ce.Kind {
	case workflow.KindNeedsReauth:
		status = http.StatusConflict
	case workflow.KindInvalid:
		status = http.StatusUnprocessableEntity
		if errors.Is(ce, workflow.ErrWorkflowNotFound) {
			status = http.StatusNotFound
		}
	}
	problem := &core.Problem{Status: status, Code: string(ce.Kind), Detail: ce.Error()}
	if len(ce.ConnectionIDs) > 0 {
		problem.Extras = map[string]any{"connection_ids": ce.ConnectionIDs}
	}
	router.RespondProblem(c, problem)
}
