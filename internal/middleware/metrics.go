package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mithaqapp/mithaq/pkg/metrics"
)

// unmatchedPath is the path label recorded for requests that hit no
// registered route. Using the raw URL there would let scanners blow up label
// cardinality.
const unmatchedPath = "unmatched"

// Metrics records request latency for each HTTP request, labelled by method,
// route template and status.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.APILatency.WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}
