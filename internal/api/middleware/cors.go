package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OriginChecker decides which browser origins may call the callback server.
type OriginChecker interface {
	Allows(origin string) bool
}

// CORS returns a middleware that answers cross-origin requests from allowed
// origins only. Requests from other origins get no CORS headers, so the
// browser refuses to expose the response to them.
func CORS(origins OriginChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" || !origins.Allows(origin) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Origin, Cache-Control, X-Requested-With")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
