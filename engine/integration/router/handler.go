package introuter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/captep/studio/engine/integration"
	"github.com/captep/studio/engine/integration/uc"
	"github.com/captep/studio/engine/infra/server/router"
	"github.com/gin-gonic/gin"
)

type AuthorizeRequest struct {
	Platform string `json:"platform" binding:"required"`
}

// Handler serves the OAuth endpoints of the integration surface.
type Handler struct {
	factory *uc.Factory
	// opener is the origin the callback page posts its result to.
	opener string
}

// NewHandler posts callback results to the first allowed origin. With none
// configured the popup only talks to its own origin.
func NewHandler(factory *uc.Factory, allowedOrigins []string) *Handler {
	h := &Handler{factory: factory}
	for _, origin := range allowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			h.opener = origin
			break
		}
	}
	return h
}

// Authorize starts an authorization for the requested platform.
func (h *Handler) Authorize(c *gin.Context) {
	var req AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		router.RespondCode(c, router.ErrBadRequestCode, "platform is required")
		return
	}
	out, err := h.factory.Authorize(req.Platform).Execute(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Callback receives the provider redirect and renders the popup page.
func (h *Handler) Callback(c *gin.Context) {
	input := &uc.CallbackInput{
		Platform:         c.Param("platform"),
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	}
	result, err := h.factory.HandleCallback(input).Execute(c.Request.Context())
	if err != nil {
		renderCallbackPage(c, h.opener, http.StatusBadRequest, &integration.AuthorizationResult{
			Status:  false,
			Message: err.Error(),
		})
		return
	}
	renderCallbackPage(c, h.opener, http.StatusOK, result)
}

// Finalize names a connection created by a successful callback.
func (h *Handler) Finalize(c *gin.Context) {
	var input uc.FinalizeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		router.RespondCode(c, router.ErrBadRequestCode, "id and name are required")
		return
	}
	conn, err := h.factory.FinalizeConnection(&input).Execute(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": true, "data": conn})
}

// Await long-polls for the outcome of the authorization identified by state.
func (h *Handler) Await(c *gin.Context) {
	result, err := h.factory.AwaitAuthorization(c.Param("state")).Execute(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, integration.ErrProviderNotFound),
		errors.Is(err, integration.ErrConnectionNotFound),
		errors.Is(err, integration.ErrStateNotFound):
		router.RespondCode(c, router.ErrNotFoundCode, err.Error())
	case errors.Is(err, integration.ErrMissingPlatform),
		errors.Is(err, integration.ErrMissingCode):
		router.RespondCode(c, router.ErrBadRequestCode, err.Error())
	case errors.Is(err, integration.ErrPlatformMismatch):
		router.RespondCode(c, router.ErrValidationCode, err.Error())
	case errors.Is(err, integration.ErrAuthorizationTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		router.RespondCode(c, router.ErrRequestTimeoutCode, err.Error())
	default:
		router.RespondCode(c, router.ErrInternalCode, err.Error())
	}
}
