package http

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
	"github.com/meshx-org/fiber/internal/infrastructure/tracing"
	"github.com/meshx-org/fiber/internal/kernel"
	"github.com/meshx-org/fiber/internal/kernel/object"
	"github.com/meshx-org/fiber/internal/kernel/userboot"
	"github.com/meshx-org/fiber/internal/shared/id"
)

// Handlers serves read-only views of a running kernel
type Handlers struct {
	kernel  *kernel.Kernel
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	booted  time.Time
	boot    atomic.Pointer[userboot.Report]
}

// NewHandlers creates the handler set for k. Metrics and tracing routes
// answer 404 when k runs without them.
func NewHandlers(k *kernel.Kernel) *Handlers {
	booted, err := id.Timestamp(k.BootID().String())
	if err != nil {
		booted = time.Now()
	}
	return &Handlers{
		kernel:  k,
		metrics: k.Metrics(),
		tracer:  k.Tracer(),
		booted:  booted,
	}
}

// SetBootReport records what userboot started, served on /boot
func (h *Handlers) SetBootReport(r userboot.Report) {
	h.boot.Store(&r)
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status        string  `json:"status"`
	BootID        string  `json:"boot_id"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	RootJob       string  `json:"root_job"`
	HandlesLive   int     `json:"handles_live"`
	HandlesMax    uint32  `json:"handles_max"`
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	render(c, http.StatusOK, gin.H{
		"service": "fiber",
		"boot_id": h.kernel.BootID().String(),
	})
}

// Health reports whether the root job is still alive
func (h *Handlers) Health(c *gin.Context) {
	arena := h.kernel.Arena()
	root := h.kernel.RootJob().State()
	resp := HealthResponse{
		Status:        "healthy",
		BootID:        h.kernel.BootID().String(),
		UptimeSeconds: time.Since(h.booted).Seconds(),
		RootJob:       root.String(),
		HandlesLive:   arena.Live(),
		HandlesMax:    arena.Capacity(),
	}
	code := http.StatusOK
	if root != object.JobReady {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	render(c, code, resp)
}

// render writes v as JSON encoded with sonic
func render(c *gin.Context, code int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(code, "application/json; charset=utf-8", body)
}

func renderError(c *gin.Context, code int, msg string) {
	render(c, code, gin.H{"error": msg})
}
