package kernel

import (
	"context"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/kernel/object"
)

// PortCreate creates an empty port
func (s *System) PortCreate(options uint32) (out fx.Handle, status fx.Status) {
	defer s.track("port_create")(&status)

	if options != 0 {
		return fx.HandleInvalid, fx.ErrInvalidArgs
	}
	if status := s.enforce(fx.PolicyNewPort); status != fx.OK {
		return fx.HandleInvalid, status
	}
	return s.publish(object.NewPort(s.k.metrics), fx.DefaultPortRights)
}

// PortQueue posts a user packet to the port behind h
func (s *System) PortQueue(h fx.Handle, packet fx.PortPacket) (status fx.Status) {
	defer s.track("port_queue")(&status)

	p, status := lookup[*object.PortDispatcher](s, h, fx.RightWrite)
	if status != fx.OK {
		return status
	}
	return p.Queue(packet)
}

// PortWait dequeues the next packet from the port behind h, waiting until
// the deadline for one to arrive.
func (s *System) PortWait(ctx context.Context, h fx.Handle, deadline fx.Time) (packet fx.PortPacket, status fx.Status) {
	defer s.track("port_wait")(&status)

	p, status := lookup[*object.PortDispatcher](s, h, fx.RightRead)
	if status != fx.OK {
		return packet, status
	}
	ctx, cancel := withDeadline(ctx, deadline)
	defer cancel()
	return p.Wait(ctx)
}

// PortCancel cancels async waits armed through source with key, and drops
// packets they already queued. It returns NOT_FOUND if there was nothing to
// cancel.
func (s *System) PortCancel(h, source fx.Handle, key uint64) (status fx.Status) {
	defer s.track("port_cancel")(&status)

	p, status := lookup[*object.PortDispatcher](s, h, fx.RightWrite)
	if status != fx.OK {
		return status
	}
	src, status := s.table.GetHandle(source)
	if status != fx.OK {
		return status
	}

	armed := src.Dispatcher().Base().CancelByKey(src, p, key)
	queued := p.CancelQueued(src, key)
	if !armed && !queued {
		return fx.ErrNotFound
	}
	return fx.OK
}
