package object

import (
	"sync"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
)

const (
	PageSize = 4096

	// MaxVmoSize bounds a vmo since its contents are always resident.
	MaxVmoSize = 1 << 30
)

// VmoDispatcher is a resizable, always-resident byte buffer
type VmoDispatcher struct {
	BaseDispatcher

	mu   sync.RWMutex
	data []byte

	metrics *monitoring.Metrics
}

func roundUpPage(size uint64) uint64 {
	return (size + PageSize - 1) &^ (PageSize - 1)
}

// NewVmo creates a zero-filled vmo of size bytes, rounded up to a page
func NewVmo(size uint64, metrics *monitoring.Metrics) (*VmoDispatcher, fx.Status) {
	if size > MaxVmoSize {
		return nil, fx.ErrOutOfRange
	}
	v := &VmoDispatcher{
		data:    make([]byte, roundUpPage(size)),
		metrics: metrics,
	}
	v.init(fx.SignalNone, nil)
	metrics.RecordDispatcherCreated(fx.ObjTypeVmo.String())
	return v, fx.OK
}

func (v *VmoDispatcher) Type() fx.ObjType         { return fx.ObjTypeVmo }
func (v *VmoDispatcher) DefaultRights() fx.Rights { return fx.DefaultVmoRights }

func (v *VmoDispatcher) OnZeroHandles() {
	v.metrics.RecordDispatcherDestroyed(fx.ObjTypeVmo.String())
}

// Size returns the current size in bytes
func (v *VmoDispatcher) Size() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return uint64(len(v.data))
}

// SetSize resizes the vmo, zero-filling any growth
func (v *VmoDispatcher) SetSize(size uint64) fx.Status {
	if size > MaxVmoSize {
		return fx.ErrOutOfRange
	}
	size = roundUpPage(size)

	v.mu.Lock()
	defer v.mu.Unlock()
	if size <= uint64(cap(v.data)) {
		old := len(v.data)
		v.data = v.data[:size]
		if int(size) > old {
			clear(v.data[old:])
		}
		return fx.OK
	}
	grown := make([]byte, size)
	copy(grown, v.data)
	v.data = grown
	return fx.OK
}

func (v *VmoDispatcher) checkRangeLocked(offset, length uint64) fx.Status {
	end := offset + length
	if end < offset || end > uint64(len(v.data)) {
		return fx.ErrOutOfRange
	}
	return fx.OK
}

// Read copies length bytes starting at offset
func (v *VmoDispatcher) Read(offset, length uint64) ([]byte, fx.Status) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if status := v.checkRangeLocked(offset, length); status != fx.OK {
		return nil, status
	}
	out := make([]byte, length)
	copy(out, v.data[offset:offset+length])
	return out, fx.OK
}

// Write copies data in starting at offset
func (v *VmoDispatcher) Write(offset uint64, data []byte) fx.Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	if status := v.checkRangeLocked(offset, uint64(len(data))); status != fx.OK {
		return status
	}
	copy(v.data[offset:], data)
	return fx.OK
}
