package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/kernel"
)

// Jobs returns the job tree from the root job down
func (h *Handlers) Jobs(c *gin.Context) {
	render(c, http.StatusOK, h.kernel.JobTree())
}

// Object describes the object with the koid in the path
func (h *Handlers) Object(c *gin.Context) {
	koid, ok := koidParam(c)
	if !ok {
		return
	}
	d, found := h.kernel.FindObject(koid)
	if !found {
		renderError(c, http.StatusNotFound, "no live object with koid "+c.Param("koid"))
		return
	}
	render(c, http.StatusOK, kernel.Describe(d))
}

// ProcessHandles lists the handle table of a process
func (h *Handlers) ProcessHandles(c *gin.Context) {
	koid, ok := koidParam(c)
	if !ok {
		return
	}
	handles, found := h.kernel.ProcessHandles(koid)
	if !found {
		renderError(c, http.StatusNotFound, "no live process with koid "+c.Param("koid"))
		return
	}
	render(c, http.StatusOK, gin.H{
		"koid":    koid,
		"count":   len(handles),
		"handles": handles,
	})
}

// Programs lists what processes can be started with
func (h *Handlers) Programs(c *gin.Context) {
	render(c, http.StatusOK, gin.H{"programs": h.kernel.Programs().List()})
}

// Boot returns the userboot report, once there is one
func (h *Handlers) Boot(c *gin.Context) {
	report := h.boot.Load()
	if report == nil {
		renderError(c, http.StatusNotFound, "boot has not completed")
		return
	}
	render(c, http.StatusOK, report)
}

func koidParam(c *gin.Context) (fx.Koid, bool) {
	v, err := strconv.ParseUint(c.Param("koid"), 10, 64)
	if err != nil || fx.Koid(v) == fx.KoidInvalid {
		renderError(c, http.StatusBadRequest, "invalid koid "+strconv.Quote(c.Param("koid")))
		return fx.KoidInvalid, false
	}
	return fx.Koid(v), true
}
