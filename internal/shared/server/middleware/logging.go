package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"clinical-review-backend/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if t := c.Param("type"); t != "" {
			fields["analysis_type"] = t
		}
		for _, key := range []string{"analysisId", "batchId"} {
			if v := c.GetString(key); v != "" {
				fields[contextLogKey(key)] = v
			}
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		if status >= 500 {
			telemetry.Error("request.complete", fields)
			return
		}
		telemetry.Info("request.complete", fields)
	}
}

func contextLogKey(key string) string {
	switch key {
	case "analysisId":
		return "analysis_id"
	case "batchId":
		return "batch_id"
	default:
		return key
	}
}
