package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultTraceLimit = 100
	maxTraceLimit     = 1000
)

// Trace returns the most recent finished spans, newest first
func (h *Handlers) Trace(c *gin.Context) {
	if h.tracer == nil {
		renderError(c, http.StatusNotFound, "tracing is disabled")
		return
	}

	limit := defaultTraceLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			renderError(c, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = min(n, maxTraceLimit)
	}

	spans := h.tracer.Recent(limit)
	render(c, http.StatusOK, gin.H{
		"count": len(spans),
		"spans": spans,
	})
}
