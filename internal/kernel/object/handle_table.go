package object

import (
	"math/rand/v2"
	"sync"

	"github.com/meshx-org/fiber/internal/fx"
)

// PolicyEnforcer applies a job policy condition on behalf of a handle table
type PolicyEnforcer interface {
	EnforceBasicPolicy(condition fx.PolicyCondition) fx.Status
}

// The low two bits of every process-visible handle value are set, so no
// valid handle is ever zero.
const handleMustBeOneMask = 0b11

// HandleTable is one process's set of handles. Values handed to the process
// are the arena base value mixed with a per-table random so values are not
// portable between processes.
type HandleTable struct {
	mu      sync.RWMutex
	handles map[uint32]*Handle
	closed  bool

	owner  fx.Koid
	arena  *Arena
	policy PolicyEnforcer
	mixer  uint32
}

// NewHandleTable creates the table for the process with koid owner. policy
// may be nil, in which case bad handles are reported without escalation.
func NewHandleTable(arena *Arena, owner fx.Koid, policy PolicyEnforcer) *HandleTable {
	return &HandleTable{
		handles: make(map[uint32]*Handle),
		owner:   owner,
		arena:   arena,
		policy:  policy,
		mixer:   rand.Uint32() &^ handleMustBeOneMask,
	}
}

// Owner returns the koid of the owning process
func (t *HandleTable) Owner() fx.Koid {
	return t.owner
}

// Arena returns the arena handles in this table are allocated from
func (t *HandleTable) Arena() *Arena {
	return t.arena
}

// MapHandleToValue returns the process-visible value of h
func (t *HandleTable) MapHandleToValue(h *Handle) fx.Handle {
	return fx.Handle(((h.baseValue << 2) | handleMustBeOneMask) ^ t.mixer)
}

func (t *HandleTable) mapValueToBase(value fx.Handle) (uint32, bool) {
	if uint32(value)&handleMustBeOneMask != handleMustBeOneMask {
		return 0, false
	}
	return (uint32(value) ^ t.mixer) >> 2, true
}

// ============================================================================
// Locked helpers
// ============================================================================

func (t *HandleTable) addHandleLocked(h *Handle) fx.Handle {
	if !h.handleTableID.CompareAndSwap(0, uint64(t.owner)) {
		panic("object: adding a handle owned by another table")
	}
	t.handles[h.baseValue] = h
	h.dispatcher.SetOwner(t.owner)
	return t.MapHandleToValue(h)
}

// getHandleLocked resolves value through the arena and checks the handle
// belongs to this table. It never applies policy; callers do that after
// unlocking.
func (t *HandleTable) getHandleLocked(value fx.Handle) *Handle {
	base, ok := t.mapValueToBase(value)
	if !ok {
		return nil
	}
	h := t.arena.FromValue(base)
	if h == nil || h.HandleTableID() != t.owner {
		return nil
	}
	if _, ok := t.handles[base]; !ok {
		return nil
	}
	return h
}

func (t *HandleTable) removeHandleLocked(h *Handle) {
	delete(t.handles, h.baseValue)
	h.handleTableID.Store(0)
}

// badHandle reports a failed lookup and applies the bad-handle policy. It
// must be called without t.mu held since a kill policy cleans this table.
func (t *HandleTable) badHandle(value fx.Handle) fx.Status {
	if value != fx.HandleInvalid && t.policy != nil {
		t.policy.EnforceBasicPolicy(fx.PolicyBadHandle)
	}
	return fx.ErrBadHandle
}

// ============================================================================
// Table operations
// ============================================================================

// AddHandle installs h and returns its process-visible value. Once the
// table has been cleaned it refuses with BAD_STATE and deletes h, so the
// handle is consumed either way.
func (t *HandleTable) AddHandle(h *Handle) (fx.Handle, fx.Status) {
	values, status := t.AddHandles([]*Handle{h})
	if status != fx.OK {
		return fx.HandleInvalid, status
	}
	return values[0], fx.OK
}

// AddHandles installs every handle, in order. It is all or nothing: a
// cleaned table deletes them all and returns BAD_STATE.
func (t *HandleTable) AddHandles(hs []*Handle) ([]fx.Handle, fx.Status) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		for _, h := range hs {
			t.arena.Delete(h)
		}
		return nil, fx.ErrBadState
	}
	values := make([]fx.Handle, len(hs))
	for i, h := range hs {
		values[i] = t.addHandleLocked(h)
	}
	t.mu.Unlock()
	return values, fx.OK
}

// GetHandle resolves value without removing it
func (t *HandleTable) GetHandle(value fx.Handle) (*Handle, fx.Status) {
	t.mu.RLock()
	h := t.getHandleLocked(value)
	t.mu.RUnlock()

	if h == nil {
		return nil, t.badHandle(value)
	}
	return h, fx.OK
}

// WithHandle resolves value and calls fn while the table lock is held.
// Closing value needs the write lock, so a close racing fn either makes the
// lookup fail or runs after fn and cancels the observers fn registered. fn
// must not call back into this table.
func (t *HandleTable) WithHandle(value fx.Handle, fn func(h *Handle) fx.Status) fx.Status {
	t.mu.RLock()
	h := t.getHandleLocked(value)
	if h == nil {
		t.mu.RUnlock()
		return t.badHandle(value)
	}
	status := fn(h)
	t.mu.RUnlock()
	return status
}

// RemoveHandle takes value out of the table. The caller owns the returned
// handle and must either install it elsewhere or delete it.
func (t *HandleTable) RemoveHandle(value fx.Handle) (*Handle, fx.Status) {
	t.mu.Lock()
	h := t.getHandleLocked(value)
	if h != nil {
		t.removeHandleLocked(h)
	}
	t.mu.Unlock()

	if h == nil {
		return nil, t.badHandle(value)
	}
	return h, fx.OK
}

// RemoveHandles takes every value out of the table. Values that do not
// resolve are skipped; the first failure status is returned alongside the
// handles that were removed.
func (t *HandleTable) RemoveHandles(values []fx.Handle) ([]*Handle, fx.Status) {
	removed := make([]*Handle, 0, len(values))
	var bad []fx.Handle

	t.mu.Lock()
	for _, v := range values {
		h := t.getHandleLocked(v)
		if h == nil {
			bad = append(bad, v)
			continue
		}
		t.removeHandleLocked(h)
		removed = append(removed, h)
	}
	t.mu.Unlock()

	status := fx.OK
	for _, v := range bad {
		if st := t.badHandle(v); status == fx.OK {
			status = st
		}
	}
	return removed, status
}

// CloseHandle removes value and deletes the handle
func (t *HandleTable) CloseHandle(value fx.Handle) fx.Status {
	h, status := t.RemoveHandle(value)
	if status != fx.OK {
		return status
	}
	t.arena.Delete(h)
	return fx.OK
}

// HandleCount returns the number of installed handles
func (t *HandleTable) HandleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handles)
}

// IsHandleValid reports whether value resolves in this table. It never
// triggers policy.
func (t *HandleTable) IsHandleValid(value fx.Handle) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.getHandleLocked(value) != nil
}

// GetKoidForHandle returns the koid behind value, or KoidInvalid
func (t *HandleTable) GetKoidForHandle(value fx.Handle) fx.Koid {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h := t.getHandleLocked(value); h != nil {
		return h.dispatcher.Koid()
	}
	return fx.KoidInvalid
}

// HandleEntry describes one installed handle
type HandleEntry struct {
	Value      fx.Handle
	Rights     fx.Rights
	Dispatcher Dispatcher
}

// ForEachHandle calls fn for a snapshot of the table until fn returns false.
// fn runs without the table lock, so it may call back into the table.
func (t *HandleTable) ForEachHandle(fn func(HandleEntry) bool) {
	t.mu.RLock()
	entries := make([]HandleEntry, 0, len(t.handles))
	for _, h := range t.handles {
		entries = append(entries, HandleEntry{
			Value:      t.MapHandleToValue(h),
			Rights:     h.rights,
			Dispatcher: h.dispatcher,
		})
	}
	t.mu.RUnlock()

	for _, e := range entries {
		if !fn(e) {
			return
		}
	}
}

// Clean removes and deletes every handle and closes the table to further
// adds. Deletion runs outside the table lock because it can cascade into
// OnZeroHandles of arbitrary objects.
func (t *HandleTable) Clean() {
	t.mu.Lock()
	t.closed = true
	handles := make([]*Handle, 0, len(t.handles))
	for _, h := range t.handles {
		t.removeHandleLocked(h)
		handles = append(handles, h)
	}
	t.mu.Unlock()

	for _, h := range handles {
		t.arena.Delete(h)
	}
}

// ============================================================================
// Typed lookup
// ============================================================================

// GetDispatcherWithRights resolves value to a dispatcher of type T. Failures
// are checked in order: BAD_HANDLE if value does not resolve, WRONG_TYPE if
// the object is not a T (after applying the wrong-object policy),
// ACCESS_DENIED if the handle lacks any of rights.
func GetDispatcherWithRights[T Dispatcher](t *HandleTable, value fx.Handle, rights fx.Rights) (T, fx.Status) {
	d, granted, status := GetDispatcherAndRights[T](t, value)
	if status != fx.OK {
		return d, status
	}
	if !granted.Has(rights) {
		var zero T
		return zero, fx.ErrAccessDenied
	}
	return d, fx.OK
}

// GetDispatcherAndRights resolves value to a dispatcher of type T and
// returns the rights the handle grants.
func GetDispatcherAndRights[T Dispatcher](t *HandleTable, value fx.Handle) (T, fx.Rights, fx.Status) {
	var zero T
	h, status := t.GetHandle(value)
	if status != fx.OK {
		return zero, fx.RightNone, status
	}
	d, ok := h.dispatcher.(T)
	if !ok {
		if t.policy != nil {
			t.policy.EnforceBasicPolicy(fx.PolicyWrongObject)
		}
		return zero, fx.RightNone, fx.ErrWrongType
	}
	return d, h.rights, fx.OK
}
