package size

import (
	"fmt"
	"net/http"

	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/infra/server/router"
	"github.com/gin-gonic/gin"
)

// BodySizeLimiter rejects declared bodies above limit with 413 and caps the
// reader for chunked uploads. A non-positive limit disables the check.
func BodySizeLimiter(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			router.RespondProblem(c, &core.Problem{
				Status: http.StatusRequestEntityTooLarge,
				Detail: fmt.Sprintf("request body exceeds %d bytes", limit),
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
