package kernel

import (
	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/kernel/object"
)

// HandleClose closes h. Closing HandleInvalid is a no-op.
func (s *System) HandleClose(h fx.Handle) (status fx.Status) {
	defer s.track("handle_close")(&status)

	if h == fx.HandleInvalid {
		return fx.OK
	}
	return s.table.CloseHandle(h)
}

// HandleCloseMany closes every handle in hs. Invalid entries are skipped;
// if any other entry does not resolve BAD_HANDLE is returned after the rest
// are closed.
func (s *System) HandleCloseMany(hs []fx.Handle) (status fx.Status) {
	defer s.track("handle_close_many")(&status)

	values := make([]fx.Handle, 0, len(hs))
	for _, h := range hs {
		if h != fx.HandleInvalid {
			values = append(values, h)
		}
	}
	removed, status := s.table.RemoveHandles(values)
	deleteHandles(removed)
	return status
}

// HandleDuplicate creates a new handle to h's object. RightSameRights copies
// h's rights; anything else must be a subset of them.
func (s *System) HandleDuplicate(h fx.Handle, rights fx.Rights) (out fx.Handle, status fx.Status) {
	defer s.track("handle_duplicate")(&status)

	src, status := s.table.GetHandle(h)
	if status != fx.OK {
		return fx.HandleInvalid, status
	}
	if !src.HasRights(fx.RightDuplicate) {
		return fx.HandleInvalid, fx.ErrAccessDenied
	}
	if rights == fx.RightSameRights {
		rights = src.Rights()
	}
	dup, status := s.k.arena.Dup(src, rights)
	if status != fx.OK {
		return fx.HandleInvalid, status
	}
	return s.table.AddHandle(dup)
}

// HandleReplace swaps h for a new handle with rights. h is consumed even
// when the call fails.
func (s *System) HandleReplace(h fx.Handle, rights fx.Rights) (out fx.Handle, status fx.Status) {
	defer s.track("handle_replace")(&status)

	src, status := s.table.RemoveHandle(h)
	if status != fx.OK {
		return fx.HandleInvalid, status
	}
	defer src.Delete()

	if rights == fx.RightSameRights {
		rights = src.Rights()
	}
	replacement, status := s.k.arena.Dup(src, rights)
	if status != fx.OK {
		return fx.HandleInvalid, status
	}
	return s.table.AddHandle(replacement)
}

// lookup resolves h to a dispatcher of type T holding rights
func lookup[T object.Dispatcher](s *System, h fx.Handle, rights fx.Rights) (T, fx.Status) {
	return object.GetDispatcherWithRights[T](s.table, h, rights)
}
