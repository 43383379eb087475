package middleware

import (
	"github.com/gin-gonic/gin"
)

// Recorder receives one observation per served request.
type Recorder interface {
	HTTPRequest(route string, status int)
}

// RequestCounter reports every request under its route template so path
// parameters do not explode label cardinality.
func RequestCounter(rec Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		rec.HTTPRequest(route, c.Writer.Status())
	}
}
