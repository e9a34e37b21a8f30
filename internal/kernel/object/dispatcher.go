package object

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/shared/id"
)

// Dispatcher is a kernel object reachable through handles. The set of
// implementations is closed to this package; callers recover the concrete
// type with a type switch or GetDispatcherWithRights.
type Dispatcher interface {
	Koid() fx.Koid
	RelatedKoid() fx.Koid
	Type() fx.ObjType
	DefaultRights() fx.Rights

	// Base exposes the shared signal and handle-count state.
	Base() *BaseDispatcher

	// OnZeroHandles runs once, when the last handle to the object is deleted.
	OnZeroHandles()

	// SetOwner records the process now holding the object's handle.
	SetOwner(owner fx.Koid)

	sealed()
}

// PeeredDispatcher is a dispatcher with a peer endpoint it can signal.
type PeeredDispatcher interface {
	Dispatcher
	PeerKoid() fx.Koid
	UserSignalPeer(clear, set fx.Signals) fx.Status
}

// SignalObserver is notified when an observed dispatcher asserts one of the
// signals it registered for. Exactly one of OnMatch or OnCancel is called,
// at most once, with the dispatcher lock held.
type SignalObserver interface {
	OnMatch(signals fx.Signals)
	OnCancel(signals fx.Signals)
}

type observerEntry struct {
	observer SignalObserver
	handle   *Handle
	trigger  fx.Signals
	edge     bool
}

// BaseDispatcher holds the state every kernel object shares.
type BaseDispatcher struct {
	koid        fx.Koid
	handleCount atomic.Uint32
	signals     atomic.Uint32

	// lock guards observers. Peered objects share one lock.
	lock      *sync.Mutex
	observers []observerEntry

	nameMu sync.Mutex
	name   string
}

// NewBaseDispatcher creates standalone dispatcher state asserting signals
func NewBaseDispatcher(signals fx.Signals) *BaseDispatcher {
	b := &BaseDispatcher{}
	b.init(signals, nil)
	return b
}

func (b *BaseDispatcher) init(signals fx.Signals, lock *sync.Mutex) {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	b.koid = id.NextKoid()
	b.signals.Store(uint32(signals))
	b.lock = lock
}

func (b *BaseDispatcher) Koid() fx.Koid          { return b.koid }
func (b *BaseDispatcher) RelatedKoid() fx.Koid   { return fx.KoidInvalid }
func (b *BaseDispatcher) Base() *BaseDispatcher  { return b }
func (b *BaseDispatcher) OnZeroHandles()         {}
func (b *BaseDispatcher) SetOwner(owner fx.Koid) {}
func (b *BaseDispatcher) sealed()                {}

// Lock returns the lock that coordinates signal raises with observer
// registration.
func (b *BaseDispatcher) Lock() *sync.Mutex {
	return b.lock
}

// Name returns the object's name property
func (b *BaseDispatcher) Name() string {
	b.nameMu.Lock()
	defer b.nameMu.Unlock()
	return b.name
}

// SetName sets the name property, truncated to fx.MaxNameLen bytes
func (b *BaseDispatcher) SetName(name string) {
	if len(name) > fx.MaxNameLen {
		name = name[:fx.MaxNameLen]
	}
	b.nameMu.Lock()
	b.name = name
	b.nameMu.Unlock()
}

// ============================================================================
// Handle count
// ============================================================================

func (b *BaseDispatcher) IncrementHandleCount() {
	b.handleCount.Add(1)
}

// DecrementHandleCount reports true exactly once, on the transition to zero.
// Go atomics are sequentially consistent, so every write made before any
// decrement is visible to the goroutine that observes zero.
func (b *BaseDispatcher) DecrementHandleCount() bool {
	return b.handleCount.Add(^uint32(0)) == 0
}

func (b *BaseDispatcher) CurrentHandleCount() uint32 {
	return b.handleCount.Load()
}

// ============================================================================
// Signals
// ============================================================================

// Signals returns the currently asserted signals
func (b *BaseDispatcher) Signals() fx.Signals {
	return fx.Signals(b.signals.Load())
}

// RaiseSignalsLocked sets signals and returns the previous state. It does not
// notify anyone.
func (b *BaseDispatcher) RaiseSignalsLocked(signals fx.Signals) fx.Signals {
	return fx.Signals(b.signals.Or(uint32(signals)))
}

// ClearSignals deasserts signals. Clearing never wakes an observer, so it
// needs no lock.
func (b *BaseDispatcher) ClearSignals(signals fx.Signals) {
	b.signals.And(^uint32(signals))
}

// UpdateState clears and then sets signals, notifying observers if the state
// changed.
func (b *BaseDispatcher) UpdateState(clear, set fx.Signals) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.UpdateStateLocked(clear, set)
}

func (b *BaseDispatcher) UpdateStateLocked(clear, set fx.Signals) {
	before := fx.Signals(b.signals.And(^uint32(clear)))
	b.signals.Or(uint32(set))
	after := b.Signals()
	if after == before {
		return
	}
	b.notifyLocked(after, after&^before)
}

// NotifyObserversLocked fires and removes every observer whose trigger
// intersects signals.
func (b *BaseDispatcher) NotifyObserversLocked(signals fx.Signals) {
	b.notifyLocked(signals, signals)
}

// notifyLocked matches level observers against current and edge observers
// against raised. Matches are collected and removed first, then fired.
func (b *BaseDispatcher) notifyLocked(current, raised fx.Signals) {
	var matched []observerEntry
	kept := b.observers[:0]
	for _, e := range b.observers {
		active := current
		if e.edge {
			active = raised
		}
		if e.trigger&active != 0 {
			matched = append(matched, e)
			continue
		}
		kept = append(kept, e)
	}
	if len(matched) == 0 {
		return
	}
	clear(b.observers[len(kept):])
	b.observers = kept

	for _, e := range matched {
		e.observer.OnMatch(current)
	}
}

// ============================================================================
// Observers
// ============================================================================

// AddObserver registers obs for trigger. A level-triggered observer whose
// trigger is already asserted fires immediately and is not retained; an edge
// observer waits for the next transition. handle ties the observer to the
// handle it was registered through, so closing that handle cancels it.
func (b *BaseDispatcher) AddObserver(obs SignalObserver, handle *Handle, trigger fx.Signals, edge bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.AddObserverLocked(obs, handle, trigger, edge)
}

func (b *BaseDispatcher) AddObserverLocked(obs SignalObserver, handle *Handle, trigger fx.Signals, edge bool) {
	if current := b.Signals(); !edge && current&trigger != 0 {
		obs.OnMatch(current)
		return
	}
	b.observers = append(b.observers, observerEntry{
		observer: obs,
		handle:   handle,
		trigger:  trigger,
		edge:     edge,
	})
}

// RemoveObserver unregisters obs without firing it. It returns false if obs
// was not registered, which means it already fired or was canceled.
func (b *BaseDispatcher) RemoveObserver(obs SignalObserver) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	for i, e := range b.observers {
		if e.observer == obs {
			b.observers = slices.Delete(b.observers, i, i+1)
			return true
		}
	}
	return false
}

// CancelByHandle cancels every observer registered through handle
func (b *BaseDispatcher) CancelByHandle(handle *Handle) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.cancelLocked(func(e observerEntry) bool { return e.handle == handle })
}

// CancelByKey cancels the port observers registered through handle for the
// given port and key. It reports whether any observer was canceled.
func (b *BaseDispatcher) CancelByKey(handle *Handle, port *PortDispatcher, key uint64) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.cancelLocked(func(e observerEntry) bool {
		po, ok := e.observer.(*portObserver)
		return ok && e.handle == handle && po.port == port && po.key == key
	})
}

func (b *BaseDispatcher) cancelLocked(match func(observerEntry) bool) bool {
	var canceled []observerEntry
	kept := b.observers[:0]
	for _, e := range b.observers {
		if match(e) {
			canceled = append(canceled, e)
			continue
		}
		kept = append(kept, e)
	}
	if len(canceled) == 0 {
		return false
	}
	clear(b.observers[len(kept):])
	b.observers = kept

	current := b.Signals()
	for _, e := range canceled {
		e.observer.OnCancel(current)
	}
	return true
}

// ObserverCount returns the number of registered observers
func (b *BaseDispatcher) ObserverCount() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.observers)
}
