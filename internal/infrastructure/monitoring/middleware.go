package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(c.Request.Method, path, status, time.Since(start))
	}
}

// Timer measures a syscall's duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	name    string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, name string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		name:    name,
	}
}

// Stop stops the timer and records the syscall with its status
func (t *Timer) Stop(status string, ok bool) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordSyscall(t.name, status, ok, duration)
	return duration
}
