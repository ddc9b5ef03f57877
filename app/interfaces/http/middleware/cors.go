package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

// CORS answers preflights from ALLOWED_CORS_HOSTS. Other OPTIONS requests
// fall through to interception like any other method.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			c.Next()
			return
		}
		header := c.Writer.Header()
		header.Add("Vary", "Origin")
		if !slices.Contains(environment_variables.Current().ALLOWED_CORS_HOSTS, origin) {
			c.Next()
			return
		}

		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Worker-Source")
		if c.Request.Method == http.MethodOptions && c.Request.Header.Get("Access-Control-Request-Method") != "" {
			header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Cache-Control, X-Request-ID, X-Requested-With")
			header.Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS")
			header.Set("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
