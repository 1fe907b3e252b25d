package router

import (
	"net/http"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/pkg/logger"
	"github.com/gin-gonic/gin"
)

const problemContentType = "application/problem+json"

// RespondProblem aborts the request with an application/problem+json body.
func RespondProblem(c *gin.Context, problem *core.Problem) {
	p := problem.Normalized()
	logProblem(c, p)
	c.Header("Content-Type", problemContentType)
	c.AbortWithStatusJSON(p.Status, p.Body())
}

// RespondProblemWithCode is RespondProblem for the common status, code and
// detail triple.
func RespondProblemWithCode(c *gin.Context, status int, code string, detail string) {
	RespondProblem(c, &core.Problem{Status: status, Code: code, Detail: detail})
}

// RespondCode derives the status from code.
func RespondCode(c *gin.Context, code string, detail string) {
	RespondProblemWithCode(c, StatusForCode(code), code, detail)
}

func logProblem(c *gin.Context, p *core.Problem) {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	log := logger.FromContext(c.Request.Context()).With(
		"status", p.Status,
		"route", route,
		"detail", p.Detail,
	)
	if p.Code != "" {
		log = log.With("code", p.Code)
	}
	if id := c.Writer.Header().Get(HeaderRequestID); id != "" {
		log = log.With("request_id", id)
	}
	if p.Status >= http.StatusInternalServerError {
		log.Error("Request failed")
		return
	}
	log.Warn("Request failed")
}
