package object

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
)

// MaxPendingPortPackets bounds a port's queue
const MaxPendingPortPackets = 16 * 1024

// PortDispatcher is a FIFO of packets that async waits and user code post
// to. Its queue has a lock of its own: observers of other objects enqueue
// while holding the observed object's lock.
type PortDispatcher struct {
	BaseDispatcher

	mu          sync.Mutex
	packets     *queue.Queue
	ready       chan struct{}
	observers   map[*portObserver]struct{}
	zeroHandles bool

	metrics *monitoring.Metrics
}

type portEntry struct {
	packet fx.PortPacket
	source *Handle
}

// NewPort creates an empty port
func NewPort(metrics *monitoring.Metrics) *PortDispatcher {
	p := &PortDispatcher{
		packets:   queue.New(),
		ready:     make(chan struct{}),
		observers: make(map[*portObserver]struct{}),
		metrics:   metrics,
	}
	p.init(fx.SignalNone, nil)
	metrics.RecordDispatcherCreated(fx.ObjTypePort.String())
	return p
}

func (p *PortDispatcher) Type() fx.ObjType         { return fx.ObjTypePort }
func (p *PortDispatcher) DefaultRights() fx.Rights { return fx.DefaultPortRights }

// Queue posts a user packet
func (p *PortDispatcher) Queue(packet fx.PortPacket) fx.Status {
	packet.Type = fx.PacketTypeUser
	return p.enqueue(portEntry{packet: packet})
}

func (p *PortDispatcher) enqueue(e portEntry) fx.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.zeroHandles {
		return fx.ErrBadState
	}
	if p.packets.Length() >= MaxPendingPortPackets {
		return fx.ErrShouldWait
	}
	p.packets.Add(e)
	close(p.ready)
	p.ready = make(chan struct{})
	p.metrics.RecordPortPacket(e.packet.Type.String())
	return fx.OK
}

// Wait dequeues the next packet, blocking until one arrives or ctx ends.
// A ctx deadline reports TIMED_OUT; any other end reports CANCELED.
func (p *PortDispatcher) Wait(ctx context.Context) (fx.PortPacket, fx.Status) {
	for {
		p.mu.Lock()
		if p.packets.Length() > 0 {
			e := p.packets.Remove().(portEntry)
			p.mu.Unlock()
			return e.packet, fx.OK
		}
		ready := p.ready
		p.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fx.PortPacket{}, fx.ErrTimedOut
			}
			return fx.PortPacket{}, fx.ErrCanceled
		}
	}
}

// PendingCount returns the number of queued packets
func (p *PortDispatcher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.packets.Length()
}

// ObserverCount returns the number of async waits still armed on this port
func (p *PortDispatcher) ObserverCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.observers)
}

// CancelQueued drops packets with key that were queued by waits through
// source, and reports whether any were dropped.
func (p *PortDispatcher) CancelQueued(source *Handle, key uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.packets.Length()
	dropped := false
	for i := 0; i < n; i++ {
		e := p.packets.Remove().(portEntry)
		if e.source != nil && e.source == source && e.packet.Key == key {
			dropped = true
			continue
		}
		p.packets.Add(e)
	}
	return dropped
}

// OnZeroHandles disarms every async wait targeting this port. Observers are
// removed without holding the queue lock, since the observed objects take
// their own lock before ours.
func (p *PortDispatcher) OnZeroHandles() {
	p.mu.Lock()
	p.zeroHandles = true
	observers := make([]*portObserver, 0, len(p.observers))
	for o := range p.observers {
		observers = append(observers, o)
	}
	clear(p.observers)
	for p.packets.Length() > 0 {
		p.packets.Remove()
	}
	p.mu.Unlock()

	for _, o := range observers {
		o.observed.Base().RemoveObserver(o)
	}
	p.metrics.RecordDispatcherDestroyed(fx.ObjTypePort.String())
}

// ============================================================================
// Async waits
// ============================================================================

// portObserver turns a signal match on another object into a SIGNAL_ONE
// packet on the port.
type portObserver struct {
	port     *PortDispatcher
	observed Dispatcher
	source   *Handle
	key      uint64
	trigger  fx.Signals
	options  uint32
}

// WaitAsync arms a one-shot wait on the object behind source. When trigger
// is asserted a packet with key is queued on p.
func (p *PortDispatcher) WaitAsync(source *Handle, key uint64, trigger fx.Signals, options uint32) fx.Status {
	o := &portObserver{
		port:     p,
		observed: source.Dispatcher(),
		source:   source,
		key:      key,
		trigger:  trigger,
		options:  options,
	}

	if status := p.arm(o); status != fx.OK {
		return status
	}
	p.register(o)
	return fx.OK
}

func (p *PortDispatcher) arm(o *portObserver) fx.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.zeroHandles {
		return fx.ErrBadState
	}
	p.observers[o] = struct{}{}
	return fx.OK
}

// register attaches o to the observed object. The observed lock is taken
// without p.mu, so a last close of the port can land in between; in that
// case OnZeroHandles found nothing to remove and o is detached here.
func (p *PortDispatcher) register(o *portObserver) {
	base := o.observed.Base()
	base.AddObserver(o, o.source, o.trigger, o.options&fx.WaitAsyncEdge != 0)

	p.mu.Lock()
	closed := p.zeroHandles
	p.mu.Unlock()
	if closed {
		base.RemoveObserver(o)
	}
}

func (o *portObserver) OnMatch(signals fx.Signals) {
	packet := fx.PortPacket{
		Key:    o.key,
		Type:   fx.PacketTypeSignalOne,
		Status: fx.OK,
		Signal: fx.PacketSignal{
			Trigger:  o.trigger,
			Observed: signals,
			Count:    1,
		},
	}
	if o.options&fx.WaitAsyncTimestamp != 0 {
		packet.Signal.Timestamp = Monotonic()
	}

	p := o.port
	p.mu.Lock()
	_, armed := p.observers[o]
	delete(p.observers, o)
	p.mu.Unlock()
	if !armed {
		return
	}
	p.enqueue(portEntry{packet: packet, source: o.source})
}

func (o *portObserver) OnCancel(fx.Signals) {
	p := o.port
	p.mu.Lock()
	delete(p.observers, o)
	p.mu.Unlock()
}
