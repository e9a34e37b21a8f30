package procargs

import (
	"context"
	"fmt"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/kernel"
)

// Startup is a startup message received by a running process, with its
// handles installed in the process's table.
type Startup struct {
	Args    []string
	Environ []string

	handles map[HandleInfo]fx.Handle
}

// Read waits for the startup message on the bootstrap channel h and reads it
func Read(ctx context.Context, sys *kernel.System, h fx.Handle) (*Startup, error) {
	if _, status := sys.ObjectWaitOne(ctx, h, fx.ChannelReadable|fx.ChannelPeerClosed, fx.TimeInfinite); status != fx.OK {
		return nil, fmt.Errorf("wait for startup message: %w", status)
	}
	msg, status := sys.ChannelRead(h, 0, fx.ChannelMaxMsgBytes, fx.ChannelMaxMsgHandles)
	if status != fx.OK {
		return nil, fmt.Errorf("read startup message: %w", status)
	}

	m, err := Unmarshal(msg.Data, len(msg.Handles))
	if err != nil {
		sys.HandleCloseMany(msg.Handles)
		return nil, err
	}

	st := &Startup{
		Args:    m.Args,
		Environ: m.Environ,
		handles: make(map[HandleInfo]fx.Handle, len(m.Handles)),
	}
	for i, info := range m.Handles {
		if old, ok := st.handles[info]; ok {
			sys.HandleClose(old)
		}
		st.handles[info] = msg.Handles[i]
	}
	return st, nil
}

// Take removes the handle tagged (t, arg) from the startup message and
// returns it, or HandleInvalid if there is none.
func (s *Startup) Take(t HandleType, arg uint16) fx.Handle {
	info := NewHandleInfo(t, arg)
	h, ok := s.handles[info]
	if !ok {
		return fx.HandleInvalid
	}
	delete(s.handles, info)
	return h
}

// Close closes every handle nobody took
func (s *Startup) Close(sys *kernel.System) {
	for info, h := range s.handles {
		sys.HandleClose(h)
		delete(s.handles, info)
	}
}

// Send writes m on the bootstrap channel h. handles[i] travels tagged with
// m.Handles[i] and is consumed whether or not the write succeeds.
func Send(sys *kernel.System, h fx.Handle, m *Message, handles []fx.Handle) error {
	if len(handles) != len(m.Handles) {
		sys.HandleCloseMany(handles)
		return fmt.Errorf("%w: %d handles for %d tags", ErrMalformed, len(handles), len(m.Handles))
	}
	if status := sys.ChannelWrite(h, 0, m.Marshal(), handles); status != fx.OK {
		return fmt.Errorf("write startup message: %w", status)
	}
	return nil
}
