package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const unmatchedRoute = "unmatched"

// GinMiddleware records request counts, latency and in-flight requests.
// Routes are labelled by their pattern so path parameters do not explode
// cardinality.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.HTTPInFlight.Inc()
		defer m.HTTPInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
