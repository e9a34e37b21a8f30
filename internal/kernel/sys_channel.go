package kernel

import (
	"context"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/kernel/object"
)

// ChannelMessage is what ChannelRead returns. ActualBytes and ActualHandles
// are set even when the buffers were too small.
type ChannelMessage struct {
	Data          []byte
	Handles       []fx.Handle
	ActualBytes   uint32
	ActualHandles uint32
}

// ChannelMessageEtc is what ChannelReadEtc and ChannelCallEtc return
type ChannelMessageEtc struct {
	Data          []byte
	Handles       []fx.HandleInfo
	ActualBytes   uint32
	ActualHandles uint32
}

// ChannelCreate creates a channel and returns both endpoints
func (s *System) ChannelCreate(options uint32) (out0, out1 fx.Handle, status fx.Status) {
	defer s.track("channel_create")(&status)

	if options != 0 {
		return fx.HandleInvalid, fx.HandleInvalid, fx.ErrInvalidArgs
	}
	if status := s.enforce(fx.PolicyNewChannel); status != fx.OK {
		return fx.HandleInvalid, fx.HandleInvalid, status
	}

	c0, c1 := object.NewChannelPair(object.ChannelOptions{
		MaxMessages: int(s.k.cfg.MaxChannelMessages),
		Metrics:     s.k.metrics,
	})
	h0, status := s.makeHandle(c0, fx.DefaultChannelRights)
	if status != fx.OK {
		object.NewKernelHandle(c1).Close()
		return fx.HandleInvalid, fx.HandleInvalid, status
	}
	h1, status := s.makeHandle(c1, fx.DefaultChannelRights)
	if status != fx.OK {
		h0.Delete()
		return fx.HandleInvalid, fx.HandleInvalid, status
	}

	values, status := s.table.AddHandles([]*object.Handle{h0, h1})
	if status != fx.OK {
		return fx.HandleInvalid, fx.HandleInvalid, status
	}
	return values[0], values[1], fx.OK
}

// readMessage dequeues a message from the channel behind h and installs its
// handles in the caller's table.
func (s *System) readMessage(h fx.Handle, options, maxBytes, maxHandles uint32) (*object.MessagePacket, []*object.Handle, []fx.Handle, object.ReadResult, fx.Status) {
	if options&^fx.ChannelReadMayDiscard != 0 {
		return nil, nil, nil, object.ReadResult{}, fx.ErrInvalidArgs
	}
	c, status := lookup[*object.ChannelDispatcher](s, h, fx.RightRead)
	if status != fx.OK {
		return nil, nil, nil, object.ReadResult{}, status
	}

	res, status := c.Read(s.proc.Koid(), maxBytes, maxHandles, options&fx.ChannelReadMayDiscard != 0)
	if status != fx.OK {
		return nil, nil, nil, res, status
	}
	handles := res.Message.TakeHandles()
	values, status := s.table.AddHandles(handles)
	if status != fx.OK {
		return nil, nil, nil, res, status
	}
	return res.Message, handles, values, res, fx.OK
}

// ChannelRead reads the next message from h. A message that does not fit
// maxBytes or maxHandles stays queued and BUFFER_TOO_SMALL is returned,
// unless options has ChannelReadMayDiscard.
func (s *System) ChannelRead(h fx.Handle, options, maxBytes, maxHandles uint32) (msg ChannelMessage, status fx.Status) {
	defer s.track("channel_read")(&status)

	packet, _, values, res, status := s.readMessage(h, options, maxBytes, maxHandles)
	msg.ActualBytes, msg.ActualHandles = res.ActualBytes, res.ActualHandles
	if status != fx.OK {
		return msg, status
	}
	msg.Data = packet.Data()
	msg.Handles = values
	return msg, fx.OK
}

// ChannelReadEtc is ChannelRead that also reports each handle's type and
// rights.
func (s *System) ChannelReadEtc(h fx.Handle, options, maxBytes, maxHandles uint32) (msg ChannelMessageEtc, status fx.Status) {
	defer s.track("channel_read_etc")(&status)

	packet, handles, values, res, status := s.readMessage(h, options, maxBytes, maxHandles)
	msg.ActualBytes, msg.ActualHandles = res.ActualBytes, res.ActualHandles
	if status != fx.OK {
		return msg, status
	}
	msg.Data = packet.Data()
	msg.Handles = handleInfos(handles, values)
	return msg, fx.OK
}

func handleInfos(handles []*object.Handle, values []fx.Handle) []fx.HandleInfo {
	infos := make([]fx.HandleInfo, len(handles))
	for i, h := range handles {
		infos[i] = fx.HandleInfo{
			Handle: values[i],
			Type:   h.Dispatcher().Type(),
			Rights: h.Rights(),
		}
	}
	return infos
}

// ChannelWrite sends data and handles to the peer of h. The handles leave
// the caller's table whether or not the write succeeds.
func (s *System) ChannelWrite(h fx.Handle, options uint32, data []byte, handles []fx.Handle) (status fx.Status) {
	defer s.track("channel_write")(&status)

	dispositions := make([]fx.HandleDisposition, len(handles))
	for i, v := range handles {
		dispositions[i] = fx.HandleDisposition{
			Operation: fx.HandleOpMove,
			Handle:    v,
			Rights:    fx.RightSameRights,
		}
	}
	return s.writeEtc(h, options, data, dispositions)
}

// ChannelWriteEtc is ChannelWrite where each handle is moved or duplicated
// with its own rights, and each disposition's Result reports its outcome.
func (s *System) ChannelWriteEtc(h fx.Handle, options uint32, data []byte, dispositions []fx.HandleDisposition) (status fx.Status) {
	defer s.track("channel_write_etc")(&status)
	return s.writeEtc(h, options, data, dispositions)
}

func (s *System) writeEtc(h fx.Handle, options uint32, data []byte, dispositions []fx.HandleDisposition) fx.Status {
	c, msg, status := s.buildMessage(h, fx.RightWrite, options, data, dispositions)
	if status != fx.OK {
		return status
	}
	if status := c.Write(s.proc.Koid(), msg); status != fx.OK {
		msg.Destroy()
		return status
	}
	return fx.OK
}

// buildMessage resolves the channel behind h and turns dispositions into
// in-flight handles. Moved handles leave the caller's table whatever the
// outcome, except h itself; on failure every collected handle is deleted.
func (s *System) buildMessage(h fx.Handle, rights fx.Rights, options uint32, data []byte, dispositions []fx.HandleDisposition) (*object.ChannelDispatcher, *object.MessagePacket, fx.Status) {
	fail := func(status fx.Status) (*object.ChannelDispatcher, *object.MessagePacket, fx.Status) {
		var moves []fx.Handle
		for _, d := range dispositions {
			if d.Operation == fx.HandleOpMove && d.Handle != h {
				moves = append(moves, d.Handle)
			}
		}
		removed, _ := s.table.RemoveHandles(moves)
		deleteHandles(removed)
		return nil, nil, status
	}

	c, status := lookup[*object.ChannelDispatcher](s, h, rights)
	if status != fx.OK {
		return fail(status)
	}
	if options != 0 {
		return fail(fx.ErrInvalidArgs)
	}
	if len(dispositions) > fx.ChannelMaxMsgHandles || len(data) > fx.ChannelMaxMsgBytes {
		return fail(fx.ErrOutOfRange)
	}

	collected := make([]*object.Handle, 0, len(dispositions))
	result := fx.OK
	for i := range dispositions {
		d := &dispositions[i]
		handle, st := s.dispose(h, d)
		d.Result = st
		if handle != nil {
			collected = append(collected, handle)
		}
		if st != fx.OK && result == fx.OK {
			result = st
		}
	}
	if result != fx.OK {
		deleteHandles(collected)
		return nil, nil, result
	}

	msg, status := object.NewMessagePacket(data, collected)
	if status != fx.OK {
		deleteHandles(collected)
		return nil, nil, status
	}
	return c, msg, fx.OK
}

// dispose produces the in-flight handle for one disposition. A moved handle
// is returned, for cleanup, even when the disposition is rejected.
func (s *System) dispose(self fx.Handle, d *fx.HandleDisposition) (*object.Handle, fx.Status) {
	if d.Handle == self {
		return nil, fx.ErrNotSupported
	}

	switch d.Operation {
	case fx.HandleOpMove:
		src, status := s.table.RemoveHandle(d.Handle)
		if status != fx.OK {
			return nil, status
		}
		if status := checkDisposition(src, d); status != fx.OK {
			return src, status
		}
		if d.Rights == fx.RightSameRights || d.Rights == src.Rights() {
			return src, fx.OK
		}
		reduced, status := s.k.arena.Dup(src, d.Rights)
		src.Delete()
		return reduced, status

	case fx.HandleOpDuplicate:
		src, status := s.table.GetHandle(d.Handle)
		if status != fx.OK {
			return nil, status
		}
		if !src.HasRights(fx.RightDuplicate) {
			return nil, fx.ErrAccessDenied
		}
		if status := checkDisposition(src, d); status != fx.OK {
			return nil, status
		}
		rights := d.Rights
		if rights == fx.RightSameRights {
			rights = src.Rights()
		}
		return s.k.arena.Dup(src, rights)

	default:
		return nil, fx.ErrInvalidArgs
	}
}

// checkDisposition validates type, transfer right and requested rights
func checkDisposition(src *object.Handle, d *fx.HandleDisposition) fx.Status {
	if d.Type != fx.ObjTypeNone && d.Type != src.Dispatcher().Type() {
		return fx.ErrWrongType
	}
	if !src.HasRights(fx.RightTransfer) {
		return fx.ErrAccessDenied
	}
	if d.Rights != fx.RightSameRights && !d.Rights.IsSubsetOf(src.Rights()) {
		return fx.ErrInvalidArgs
	}
	return fx.OK
}

// ChannelCallEtc writes a message and waits for the reply carrying the same
// transaction id, the deadline, or the peer closing.
func (s *System) ChannelCallEtc(ctx context.Context, h fx.Handle, options uint32, deadline fx.Time, data []byte, dispositions []fx.HandleDisposition) (reply ChannelMessageEtc, status fx.Status) {
	defer s.track("channel_call_etc")(&status)

	c, msg, status := s.buildMessage(h, fx.RightRead|fx.RightWrite, options, data, dispositions)
	if status != fx.OK {
		return reply, status
	}

	ctx, cancel := withDeadline(ctx, deadline)
	defer cancel()

	packet, status := c.Call(ctx, s.proc.Koid(), msg)
	if status != fx.OK {
		return reply, status
	}

	handles := packet.TakeHandles()
	values, status := s.table.AddHandles(handles)
	if status != fx.OK {
		return reply, status
	}
	reply.Data = packet.Data()
	reply.Handles = handleInfos(handles, values)
	reply.ActualBytes = packet.DataSize()
	reply.ActualHandles = uint32(len(handles))
	return reply, fx.OK
}
