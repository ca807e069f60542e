package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origins is a parsed CORS_ALLOWED_ORIGINS list. "*" allows any origin.
type Origins struct {
	any     bool
	allowed map[string]bool
}

func ParseOrigins(list string) *Origins {
	o := &Origins{allowed: make(map[string]bool)}
	for _, origin := range strings.Split(list, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			o.any = true
		} else if origin != "" {
			o.allowed[origin] = true
		}
	}
	return o
}

func (o *Origins) Allow(origin string) bool {
	return o.any || o.allowed[origin]
}

func CORSMiddleware(origins *Origins) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && origins.Allow(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
