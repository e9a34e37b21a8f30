package kernel

import (
	"context"
	"errors"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/kernel/object"
)

// ObjectWaitOne blocks until one of signals is asserted on h's object, the
// deadline passes or ctx ends. If h is closed while waiting it returns
// CANCELED with SignalHandleClosed set in the observed signals.
func (s *System) ObjectWaitOne(ctx context.Context, h fx.Handle, signals fx.Signals, deadline fx.Time) (observed fx.Signals, status fx.Status) {
	defer s.track("object_wait_one")(&status)

	var base *object.BaseDispatcher
	w := object.NewWaiter()
	status = s.table.WithHandle(h, func(handle *object.Handle) fx.Status {
		if !handle.HasRights(fx.RightWait) {
			return fx.ErrAccessDenied
		}
		base = handle.Dispatcher().Base()
		base.AddObserver(w, handle, signals, false)
		return fx.OK
	})
	if status != fx.OK {
		return 0, status
	}

	ctx, cancel := withDeadline(ctx, deadline)
	defer cancel()

	select {
	case <-w.Done():
	case <-ctx.Done():
		if base.RemoveObserver(w) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return base.Signals(), fx.ErrTimedOut
			}
			return base.Signals(), fx.ErrCanceled
		}
		// The observer completed concurrently with ctx.
		<-w.Done()
	}

	observed, canceled := w.Result()
	if canceled {
		return observed, fx.ErrCanceled
	}
	return observed, fx.OK
}

// ObjectWaitAsync arms a one-shot wait on h's object that queues a packet
// with key on port once one of signals is asserted.
func (s *System) ObjectWaitAsync(h, port fx.Handle, key uint64, signals fx.Signals, options uint32) (status fx.Status) {
	defer s.track("object_wait_async")(&status)

	if options&^(fx.WaitAsyncTimestamp|fx.WaitAsyncEdge) != 0 {
		return fx.ErrInvalidArgs
	}
	p, status := lookup[*object.PortDispatcher](s, port, fx.RightWrite)
	if status != fx.OK {
		return status
	}
	return s.table.WithHandle(h, func(handle *object.Handle) fx.Status {
		if !handle.HasRights(fx.RightWait) {
			return fx.ErrAccessDenied
		}
		return p.WaitAsync(handle, key, signals, options)
	})
}

// signalable returns the signals user code may change on d
func signalable(d object.Dispatcher) fx.Signals {
	if d.Type() == fx.ObjTypeEvent {
		return fx.UserSignalAll | fx.EventSignaled
	}
	return fx.UserSignalAll
}

// ObjectSignal clears then sets signals on h's object
func (s *System) ObjectSignal(h fx.Handle, clear, set fx.Signals) (status fx.Status) {
	defer s.track("object_signal")(&status)

	d, status := lookup[object.Dispatcher](s, h, fx.RightSignal)
	if status != fx.OK {
		return status
	}
	if (clear|set)&^signalable(d) != 0 {
		return fx.ErrInvalidArgs
	}
	d.Base().UpdateState(clear, set)
	return fx.OK
}

// ObjectSignalPeer clears then sets user signals on the peer of h's object
func (s *System) ObjectSignalPeer(h fx.Handle, clear, set fx.Signals) (status fx.Status) {
	defer s.track("object_signal_peer")(&status)

	d, status := lookup[object.Dispatcher](s, h, fx.RightSignalPeer)
	if status != fx.OK {
		return status
	}
	peered, ok := d.(object.PeeredDispatcher)
	if !ok {
		return fx.ErrNotSupported
	}
	if (clear|set)&^fx.UserSignalAll != 0 {
		return fx.ErrInvalidArgs
	}
	return peered.UserSignalPeer(clear, set)
}

// ObjectGetInfo answers TopicHandleValid and TopicHandleBasic. For
// TopicHandleValid only the status is meaningful.
func (s *System) ObjectGetInfo(h fx.Handle, topic fx.InfoTopic) (info fx.InfoHandleBasic, status fx.Status) {
	defer s.track("object_get_info")(&status)

	switch topic {
	case fx.TopicHandleValid:
		if !s.table.IsHandleValid(h) {
			return info, fx.ErrBadHandle
		}
		return info, fx.OK
	case fx.TopicHandleBasic:
		handle, status := s.table.GetHandle(h)
		if status != fx.OK {
			return info, status
		}
		d := handle.Dispatcher()
		return fx.InfoHandleBasic{
			Koid:        d.Koid(),
			Rights:      handle.Rights(),
			Type:        d.Type(),
			RelatedKoid: d.RelatedKoid(),
		}, fx.OK
	default:
		return info, fx.ErrNotSupported
	}
}

// ObjectGetProperty reads a property of h's object. Only PropName exists.
func (s *System) ObjectGetProperty(h fx.Handle, property uint32) (value []byte, status fx.Status) {
	defer s.track("object_get_property")(&status)

	d, status := lookup[object.Dispatcher](s, h, fx.RightGetProperty)
	if status != fx.OK {
		return nil, status
	}
	if property != fx.PropName {
		return nil, fx.ErrInvalidArgs
	}
	return []byte(d.Base().Name()), fx.OK
}

// ObjectSetProperty writes a property of h's object. Names longer than
// MaxNameLen are truncated.
func (s *System) ObjectSetProperty(h fx.Handle, property uint32, value []byte) (status fx.Status) {
	defer s.track("object_set_property")(&status)

	d, status := lookup[object.Dispatcher](s, h, fx.RightSetProperty)
	if status != fx.OK {
		return status
	}
	if property != fx.PropName {
		return fx.ErrInvalidArgs
	}
	d.Base().SetName(string(value))
	return fx.OK
}
