package middleware

import "github.com/gin-gonic/gin"

// NoStore forbids any cache from keeping the response. Exam papers and
// session state must never be served from a browser or proxy cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, max-age=0")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
