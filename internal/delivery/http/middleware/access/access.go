package http_access_middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	http_common "github.com/humanbelnik/judgement/internal/delivery/http/common"
)

// ReadOnly lets only plain GET requests through when enabled. Lobby reads
// and the rules endpoints keep working on a drained instance; websocket
// sessions, which carry commands, are refused.
func ReadOnly(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled || (!c.IsWebsocket() && (c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead)) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusServiceUnavailable, http_common.ErrorResponse{
			Message: "write operations not allowed on read-only instance",
		})
	}
}
