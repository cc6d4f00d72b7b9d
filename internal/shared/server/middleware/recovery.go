package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"clinical-review-backend/internal/shared/metrics"
	"clinical-review-backend/internal/shared/server/respond"
	"clinical-review-backend/internal/shared/telemetry"
)

const maxStackBytes = 8 << 10

// Recovery turns a handler panic into a 500 error envelope. When the handler already started
// writing, the response is left as is and only the request is aborted.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			stack := debug.Stack()
			if len(stack) > maxStackBytes {
				stack = stack[:maxStackBytes]
			}
			route := c.FullPath()
			telemetry.Error("http.panic", map[string]any{
				"request_id":    RequestIDFromContext(c),
				"method":        c.Request.Method,
				"route":         route,
				"analysis_type": c.Param("type"),
				"error":         fmt.Sprint(rec),
				"stack":         string(stack),
			})
			metrics.IncHTTPPanic(route)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal_error", "unexpected server error", nil)
		}()
		c.Next()
	}
}
