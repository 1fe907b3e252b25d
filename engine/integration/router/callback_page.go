package introuter

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/captep/studio/engine/integration"
	"github.com/captep/studio/pkg/logger"
	"github.com/gin-gonic/gin"
)

// The popup hands the result to the window that opened it and closes itself.
var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Integration</title></head>
<body>
<p>{{.Result.Message}}</p>
<script>
  const result = {{.Result}};
  const target = {{.Origin}} || window.location.origin;
  if (window.opener) {
    window.opener.postMessage(result, target);
  }
  window.close();
</script>
</body>
</html>
`))

type callbackView struct {
	Result *integration.AuthorizationResult
	Origin string
}

func renderCallbackPage(c *gin.Context, origin string, status int, result *integration.AuthorizationResult) {
	var buf bytes.Buffer
	if err := callbackPage.Execute(&buf, callbackView{Result: result, Origin: origin}); err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to render callback page", "error", err)
		c.String(http.StatusInternalServerError, "integration failed")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}
