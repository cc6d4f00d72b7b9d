package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods       = "GET, POST, DELETE, OPTIONS"
	corsAllowHeaders  = "Content-Type, X-Request-Id, X-Tenant-Email"
	corsExposeHeaders = "X-Request-Id, Retry-After"
	corsMaxAgeSeconds = "600"
)

// CORS answers browser uploads from the configured origins. "*" allows any origin but then
// credentials are not advertised. Preflights are always answered with 204; a disallowed origin
// simply gets no CORS headers.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]bool, len(allowedOrigins))
	anyOrigin := false
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			anyOrigin = true
		default:
			origins[strings.ToLower(o)] = true
		}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")
		if origin := c.GetHeader("Origin"); origin != "" {
			explicit := origins[strings.ToLower(origin)]
			if explicit || anyOrigin {
				h.Set("Access-Control-Allow-Origin", origin)
				if explicit {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				if c.Request.Method == http.MethodOptions {
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					h.Set("Access-Control-Max-Age", corsMaxAgeSeconds)
				}
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
