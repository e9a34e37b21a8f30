package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
)

// MetricsSnapshot is the JSON form of the kernel counters
type MetricsSnapshot struct {
	Timestamp time.Time                  `json:"timestamp"`
	Kernel    monitoring.MetricsSnapshot `json:"kernel"`
	Summary   MetricsSummary             `json:"summary"`
}

// MetricsSummary holds ratios derived from the counters
type MetricsSummary struct {
	SyscallErrorRate float64 `json:"syscall_error_rate"`
	HandleUsage      float64 `json:"handle_usage"`
}

// Metrics serves the prometheus exposition of the kernel's registry
func (h *Handlers) Metrics() gin.HandlerFunc {
	if h.metrics == nil {
		return func(c *gin.Context) {
			renderError(c, http.StatusNotFound, "metrics are disabled")
		}
	}
	return gin.WrapH(promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{}))
}

// MetricsJSON returns a snapshot of the kernel counters
func (h *Handlers) MetricsJSON(c *gin.Context) {
	if h.metrics == nil {
		renderError(c, http.StatusNotFound, "metrics are disabled")
		return
	}

	kernelSnap := h.metrics.GetSnapshot()
	render(c, http.StatusOK, MetricsSnapshot{
		Timestamp: time.Now(),
		Kernel:    kernelSnap,
		Summary:   summarize(kernelSnap, h.kernel.Arena().Capacity()),
	})
}

func summarize(s monitoring.MetricsSnapshot, capacity uint32) MetricsSummary {
	var sum MetricsSummary
	if s.Syscalls > 0 {
		sum.SyscallErrorRate = float64(s.SyscallErrors) / float64(s.Syscalls)
	}
	if capacity > 0 {
		sum.HandleUsage = float64(s.HandlesLive) / float64(capacity)
	}
	return sum
}
