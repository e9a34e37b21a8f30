package kernel

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
	"github.com/meshx-org/fiber/internal/kernel/object"
)

// System is the syscall surface as seen by one process. Handle values are
// resolved in that process's table and object-creation calls are checked
// against its job policy.
type System struct {
	k      *Kernel
	proc   *object.ProcessDispatcher
	table  *object.HandleTable
	ctx    context.Context
	logger *zap.Logger
}

// Process returns the calling process
func (s *System) Process() *object.ProcessDispatcher {
	return s.proc
}

// Kernel returns the kernel the surface belongs to
func (s *System) Kernel() *Kernel {
	return s.k
}

// Logger returns the kernel logger tagged with the calling process's koid
func (s *System) Logger() *zap.Logger {
	return s.logger
}

// track records a syscall in metrics and, when tracing is on, as a span.
// Use as: defer s.track("name")(&status).
func (s *System) track(name string) func(*fx.Status) {
	timer := monitoring.NewTimer(s.k.metrics, name)
	if s.k.tracer == nil {
		return func(status *fx.Status) {
			timer.Stop(status.String(), *status == fx.OK)
		}
	}

	span, _ := s.k.tracer.StartSpan(s.ctx, name)
	span.SetTag("pid", strconv.FormatUint(uint64(s.proc.Koid()), 10))
	return func(status *fx.Status) {
		timer.Stop(status.String(), *status == fx.OK)
		span.SetStatus(status.String(), *status != fx.OK)
		span.Finish()
		s.k.tracer.Submit(span)
	}
}

// enforce applies the job policy for creating an object
func (s *System) enforce(condition fx.PolicyCondition) fx.Status {
	return s.proc.EnforceBasicPolicy(condition)
}

// publish turns a fresh dispatcher into a handle in the caller's table. If
// the arena is exhausted the dispatcher is destroyed.
func (s *System) publish(d object.Dispatcher, rights fx.Rights) (fx.Handle, fx.Status) {
	h, status := s.makeHandle(d, rights)
	if status != fx.OK {
		return fx.HandleInvalid, status
	}
	return s.table.AddHandle(h)
}

func (s *System) makeHandle(d object.Dispatcher, rights fx.Rights) (*object.Handle, fx.Status) {
	kh := object.NewKernelHandle(d)
	h, status := s.k.arena.Make(kh, rights)
	if status != fx.OK {
		kh.Close()
		return nil, status
	}
	return h, fx.OK
}

// withDeadline derives a context that ends at the monotonic deadline
func withDeadline(ctx context.Context, deadline fx.Time) (context.Context, context.CancelFunc) {
	if at, ok := object.WallDeadline(deadline); ok {
		return context.WithDeadline(ctx, at)
	}
	return context.WithCancel(ctx)
}

func deleteHandles(hs []*object.Handle) {
	for _, h := range hs {
		h.Delete()
	}
}
