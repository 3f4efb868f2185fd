package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pg-user-api/internal/metrics"
)

// Metrics records request latency labelled by route template, not raw path.
func Metrics(m *metrics.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
