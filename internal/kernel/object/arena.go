package object

import (
	"fmt"
	"math/bits"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/logging"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
)

// The top two bits of a base value are never used, so the process-visible
// encoding (base << 2 | 0b11) fits in 32 bits.
const reservedMask uint32 = 0b11 << 30

const (
	DefaultArenaCapacity     = 256 * 1024
	DefaultArenaWarnInterval = time.Second
)

// ArenaConfig sizes an arena
type ArenaConfig struct {
	// Capacity is the number of slots. It must be a power of two between 4
	// and 1<<24 so that at least six bits remain for the generation.
	Capacity uint32

	// WarnInterval bounds how often the high handle count warning is logged.
	WarnInterval time.Duration
}

// Arena is the kernel-wide slab of handles. A slot keeps the value of its
// last occupant, and each new occupant gets the next generation, so a stale
// value never resolves to a reused slot.
type Arena struct {
	mu    sync.RWMutex
	slots []arenaSlot
	free  []uint32
	live  int

	capacity  uint32
	indexMask uint32
	genMask   uint32
	genShift  int

	logger  *zap.Logger
	metrics *monitoring.Metrics
	warn    *rate.Limiter
}

type arenaSlot struct {
	handle    *Handle
	lastValue uint32
}

// NewArena creates an arena. It panics if the capacity is invalid; callers
// validate configuration before building a kernel.
func NewArena(cfg ArenaConfig, logger *zap.Logger, metrics *monitoring.Metrics) *Arena {
	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = DefaultArenaCapacity
	}
	if capacity < 4 || capacity&(capacity-1) != 0 || capacity > 1<<24 {
		panic(fmt.Sprintf("object: invalid arena capacity %d", capacity))
	}
	interval := cfg.WarnInterval
	if interval <= 0 {
		interval = DefaultArenaWarnInterval
	}

	indexMask := capacity - 1
	return &Arena{
		capacity:  capacity,
		indexMask: indexMask,
		genMask:   ^indexMask &^ reservedMask,
		genShift:  bits.TrailingZeros32(capacity),
		logger:    logging.OrNop(logger).Named("arena"),
		metrics:   metrics,
		warn:      rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Capacity returns the number of slots
func (a *Arena) Capacity() uint32 {
	return a.capacity
}

// Live returns the number of allocated handles
func (a *Arena) Live() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.live
}

// newHandleValue embeds index verbatim and advances the generation of the
// slot's previous value.
func (a *Arena) newHandleValue(index, old uint32) uint32 {
	var gen uint32
	if old != 0 {
		gen = (old & a.genMask) >> a.genShift
	}
	return (((gen + 1) << a.genShift) & a.genMask) | index
}

// Make publishes kh as a handle with rights. The only failure is arena
// exhaustion, reported before the dispatcher is touched; kh then still owns
// the dispatcher.
func (a *Arena) Make(kh *KernelHandle, rights fx.Rights) (*Handle, fx.Status) {
	d := kh.Dispatcher()
	if d == nil {
		panic("object: making a handle from an empty kernel handle")
	}
	h, status := a.alloc(d, rights, "make")
	if status != fx.OK {
		return nil, status
	}
	kh.release()
	return h, fx.OK
}

// Dup creates a second handle to src's dispatcher. rights must be a subset
// of src's rights.
func (a *Arena) Dup(src *Handle, rights fx.Rights) (*Handle, fx.Status) {
	if !rights.IsSubsetOf(src.rights) {
		return nil, fx.ErrAccessDenied
	}
	return a.alloc(src.dispatcher, rights, "dup")
}

func (a *Arena) alloc(d Dispatcher, rights fx.Rights, op string) (*Handle, fx.Status) {
	a.mu.Lock()
	var index uint32
	switch {
	case len(a.free) > 0:
		index = a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
	case uint32(len(a.slots)) < a.capacity:
		index = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot{})
	default:
		a.mu.Unlock()
		a.metrics.RecordAllocFailed()
		a.logger.Warn("handle arena exhausted",
			zap.Uint32("capacity", a.capacity),
			logging.ObjType(d.Type()),
		)
		return nil, fx.ErrNoResources
	}

	slot := &a.slots[index]
	h := &Handle{
		dispatcher: d,
		rights:     rights,
		baseValue:  a.newHandleValue(index, slot.lastValue),
		arena:      a,
	}
	slot.handle = h
	slot.lastValue = h.baseValue
	a.live++
	live := a.live
	d.Base().IncrementHandleCount()
	a.mu.Unlock()

	a.metrics.RecordHandleCreated(op)
	if uint32(live) > a.capacity/8*7 && a.warn.Allow() {
		a.logger.Warn("high handle count",
			zap.Int("live", live),
			zap.Uint32("capacity", a.capacity),
		)
	}
	return h, fx.OK
}

// FromValue resolves a base value to its handle. It returns nil if the slot
// is empty or holds a different generation.
func (a *Arena) FromValue(value uint32) *Handle {
	index := value & a.indexMask
	a.mu.RLock()
	defer a.mu.RUnlock()

	if index >= uint32(len(a.slots)) {
		return nil
	}
	h := a.slots[index].handle
	if h == nil || h.baseValue != value {
		return nil
	}
	return h
}

// Delete frees h. The owning table must have cleared the handle's table id
// first. Observers registered through h are canceled, and if h was the last
// handle to its dispatcher the dispatcher's OnZeroHandles runs.
func (a *Arena) Delete(h *Handle) {
	if h.handleTableID.Load() != 0 {
		panic("object: deleting a handle still owned by a handle table")
	}
	d := h.dispatcher
	d.Base().CancelByHandle(h)

	index := h.baseValue & a.indexMask
	a.mu.Lock()
	if index >= uint32(len(a.slots)) || a.slots[index].handle != h {
		a.mu.Unlock()
		panic("object: deleting a handle the arena does not hold")
	}
	a.slots[index].handle = nil
	a.free = append(a.free, index)
	a.live--
	a.mu.Unlock()

	a.metrics.RecordHandleDeleted()
	if d.Base().DecrementHandleCount() {
		a.logger.Debug("last handle closed",
			logging.Koid("koid", d.Koid()),
			logging.ObjType(d.Type()),
		)
		d.OnZeroHandles()
	}
}
