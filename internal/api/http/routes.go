package http

import "github.com/gin-gonic/gin"

// Register mounts every diagnostics route on r
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/metrics", h.Metrics())
	r.GET("/metrics/json", h.MetricsJSON)
	r.GET("/jobs", h.Jobs)
	r.GET("/objects/:koid", h.Object)
	r.GET("/processes/:koid/handles", h.ProcessHandles)
	r.GET("/programs", h.Programs)
	r.GET("/boot", h.Boot)
	r.GET("/trace", h.Trace)
}
