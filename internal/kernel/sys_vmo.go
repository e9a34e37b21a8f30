package kernel

import (
	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/kernel/object"
)

// EventCreate creates an event with no signals asserted
func (s *System) EventCreate(options uint32) (out fx.Handle, status fx.Status) {
	defer s.track("event_create")(&status)

	if options != 0 {
		return fx.HandleInvalid, fx.ErrInvalidArgs
	}
	if status := s.enforce(fx.PolicyNewEvent); status != fx.OK {
		return fx.HandleInvalid, status
	}
	return s.publish(object.NewEvent(s.k.metrics), fx.DefaultEventRights)
}

// VmoCreate creates a zero-filled vmo of at least size bytes
func (s *System) VmoCreate(size uint64, options uint32) (out fx.Handle, status fx.Status) {
	defer s.track("vmo_create")(&status)

	if options != 0 {
		return fx.HandleInvalid, fx.ErrInvalidArgs
	}
	if status := s.enforce(fx.PolicyNewVmo); status != fx.OK {
		return fx.HandleInvalid, status
	}
	vmo, status := object.NewVmo(size, s.k.metrics)
	if status != fx.OK {
		return fx.HandleInvalid, status
	}
	return s.publish(vmo, fx.DefaultVmoRights)
}

func (s *System) VmoRead(h fx.Handle, offset, length uint64) (data []byte, status fx.Status) {
	defer s.track("vmo_read")(&status)

	vmo, status := lookup[*object.VmoDispatcher](s, h, fx.RightRead)
	if status != fx.OK {
		return nil, status
	}
	return vmo.Read(offset, length)
}

func (s *System) VmoWrite(h fx.Handle, offset uint64, data []byte) (status fx.Status) {
	defer s.track("vmo_write")(&status)

	vmo, status := lookup[*object.VmoDispatcher](s, h, fx.RightWrite)
	if status != fx.OK {
		return status
	}
	return vmo.Write(offset, data)
}

func (s *System) VmoGetSize(h fx.Handle) (size uint64, status fx.Status) {
	defer s.track("vmo_get_size")(&status)

	vmo, status := lookup[*object.VmoDispatcher](s, h, fx.RightNone)
	if status != fx.OK {
		return 0, status
	}
	return vmo.Size(), fx.OK
}

func (s *System) VmoSetSize(h fx.Handle, size uint64) (status fx.Status) {
	defer s.track("vmo_set_size")(&status)

	vmo, status := lookup[*object.VmoDispatcher](s, h, fx.RightWrite)
	if status != fx.OK {
		return status
	}
	return vmo.SetSize(size)
}
