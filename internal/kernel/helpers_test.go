package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/config"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
	"github.com/meshx-org/fiber/internal/kernel/object"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k := New(Options{
		Config: config.KernelConfig{
			MaxHandles:       1024,
			RootJobMaxHeight: 8,
		},
		Metrics: monitoring.NewMetrics(),
	})
	t.Cleanup(k.Shutdown)
	return k
}

// newTestSystem returns the syscall surface of a fresh, never started
// process in the root job.
func newTestSystem(t *testing.T, k *Kernel) *System {
	t.Helper()
	p, status := k.NewProcess(k.RootJob(), t.Name())
	require.Equal(t, fx.OK, status)
	return k.System(p)
}

// grant installs a handle to d with rights in the caller's table
func grant(t *testing.T, s *System, d object.Dispatcher, rights fx.Rights) fx.Handle {
	t.Helper()
	h, status := s.publish(d, rights)
	require.Equal(t, fx.OK, status)
	return h
}

// grantRootJob gives s a handle to the root job with its default rights
func grantRootJob(t *testing.T, s *System) fx.Handle {
	t.Helper()
	return grant(t, s, s.k.RootJob(), fx.DefaultJobRights)
}

func mustChannel(t *testing.T, s *System) (fx.Handle, fx.Handle) {
	t.Helper()
	h0, h1, status := s.ChannelCreate(0)
	require.Equal(t, fx.OK, status)
	return h0, h1
}

func mustEvent(t *testing.T, s *System) fx.Handle {
	t.Helper()
	h, status := s.EventCreate(0)
	require.Equal(t, fx.OK, status)
	return h
}

func mustPort(t *testing.T, s *System) fx.Handle {
	t.Helper()
	h, status := s.PortCreate(0)
	require.Equal(t, fx.OK, status)
	return h
}

func koidOf(t *testing.T, s *System, h fx.Handle) fx.Koid {
	t.Helper()
	info, status := s.ObjectGetInfo(h, fx.TopicHandleBasic)
	require.Equal(t, fx.OK, status)
	return info.Koid
}

// waitTerminated blocks until the task behind h has terminated
func waitTerminated(t *testing.T, s *System, h fx.Handle) {
	t.Helper()
	observed, status := s.ObjectWaitOne(context.Background(), h, fx.TaskTerminated, s.DeadlineAfter(fx.FromDuration(5*time.Second)))
	require.Equal(t, fx.OK, status)
	require.True(t, observed&fx.TaskTerminated != 0)
}
