package object

import (
	"sync/atomic"

	"github.com/meshx-org/fiber/internal/fx"
)

// KernelHandle owns a dispatcher that has not been published as a Handle
// yet. Closing a KernelHandle that still owns its dispatcher runs
// OnZeroHandles, so an object whose publication failed midway is still torn
// down.
type KernelHandle struct {
	dispatcher Dispatcher
}

// NewKernelHandle wraps d
func NewKernelHandle(d Dispatcher) *KernelHandle {
	return &KernelHandle{dispatcher: d}
}

// Dispatcher returns the wrapped dispatcher, or nil once published
func (kh *KernelHandle) Dispatcher() Dispatcher {
	return kh.dispatcher
}

func (kh *KernelHandle) release() Dispatcher {
	d := kh.dispatcher
	kh.dispatcher = nil
	return d
}

// Close tears the dispatcher down if it was never published
func (kh *KernelHandle) Close() {
	if d := kh.release(); d != nil {
		d.OnZeroHandles()
	}
}

// Handle is an arena-resident capability: a dispatcher plus the rights this
// particular reference grants.
type Handle struct {
	// handleTableID is the koid of the owning process, or zero while the
	// handle is in flight (inside a message or being deleted).
	handleTableID atomic.Uint64

	dispatcher Dispatcher
	rights     fx.Rights
	baseValue  uint32
	arena      *Arena
}

func (h *Handle) Dispatcher() Dispatcher { return h.dispatcher }
func (h *Handle) Rights() fx.Rights      { return h.rights }

// BaseValue is the arena encoding of the handle: generation and slot index.
func (h *Handle) BaseValue() uint32 {
	return h.baseValue
}

// HandleTableID returns the koid of the process whose table holds the handle
func (h *Handle) HandleTableID() fx.Koid {
	return fx.Koid(h.handleTableID.Load())
}

// HasRights reports whether the handle grants every right in want
func (h *Handle) HasRights(want fx.Rights) bool {
	return h.rights.Has(want)
}

// Delete returns the handle to the arena it came from
func (h *Handle) Delete() {
	h.arena.Delete(h)
}
