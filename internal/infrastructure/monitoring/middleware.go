package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(method, path, status, duration)
	}
}

// Timer measures the duration of one collaborator call.
type Timer struct {
	start   time.Time
	metrics *Metrics
	call    string
}

// NewTimer creates a new timer for a backend call.
func NewTimer(metrics *Metrics, call string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		call:    call,
	}
}

// Stop stops the timer and records the call outcome.
func (t *Timer) Stop(status string) {
	t.metrics.RecordBackendCall(t.call, status, time.Since(t.start))
}
