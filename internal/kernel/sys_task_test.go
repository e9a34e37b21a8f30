package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/kernel/object"
)

func register(t *testing.T, k *Kernel, name string, fn func(ctx context.Context, sys *System, arg fx.Handle) int64) {
	t.Helper()
	require.NoError(t, k.Programs().Register(ProgramFunc{
		Info: ProgramInfo{Name: name},
		Fn:   fn,
	}))
}

func processOf(t *testing.T, s *System, h fx.Handle) *object.ProcessDispatcher {
	t.Helper()
	p, status := lookup[*object.ProcessDispatcher](s, h, fx.RightNone)
	require.Equal(t, fx.OK, status)
	return p
}

func mustProcess(t *testing.T, s *System, job fx.Handle, name string) fx.Handle {
	t.Helper()
	h, status := s.ProcessCreate(job, name, 0)
	require.Equal(t, fx.OK, status)
	return h
}

func TestJobCreate(t *testing.T) {
	k := newTestKernel(t)
	s := newTestSystem(t, k)
	root := grantRootJob(t, s)

	child, status := s.JobCreate(root, 0)
	require.Equal(t, fx.OK, status)
	info, status := s.ObjectGetInfo(child, fx.TopicHandleBasic)
	require.Equal(t, fx.OK, status)
	assert.Equal(t, fx.ObjTypeJob, info.Type)
	assert.Equal(t, fx.DefaultJobRights, info.Rights)
	assert.Equal(t, k.RootJob().Koid(), info.RelatedKoid)

	_, status = s.JobCreate(root, 1)
	assert.Equal(t, fx.ErrInvalidArgs, status)

	weak, status := s.HandleDuplicate(root, fx.RightsBasic)
	require.Equal(t, fx.OK, status)
	_, status = s.JobCreate(weak, 0)
	assert.Equal(t, fx.ErrAccessDenied, status)

	ev := mustEvent(t, s)
	_, status = s.JobCreate(ev, 0)
	assert.Equal(t, fx.ErrWrongType, status)
}

func TestJobCreateHeightLimit(t *testing.T) {
	k := newTestKernel(t)
	s := newTestSystem(t, k)

	job := grantRootJob(t, s)
	for range k.Config().RootJobMaxHeight {
		next, status := s.JobCreate(job, 0)
		require.Equal(t, fx.OK, status)
		job = next
	}
	_, status := s.JobCreate(job, 0)
	assert.Equal(t, fx.ErrOutOfRange, status)
}

func TestJobSetPolicy(t *testing.T) {
	k := newTestKernel(t)
	s := newTestSystem(t, k)
	root := grantRootJob(t, s)

	deny := []fx.PolicyBasic{{Condition: fx.PolicyNewChannel, Action: fx.PolicyActionDeny}}

	tests := []struct {
		name   string
		rights fx.Rights
		topic  uint32
		status fx.Status
	}{
		{"basic", fx.RightSameRights, fx.JobPolicyBasic, fx.OK},
		{"timer slack", fx.RightSameRights, fx.JobPolicyTimerSlack, fx.ErrNotSupported},
		{"unknown topic", fx.RightSameRights, 9, fx.ErrInvalidArgs},
		{"no set policy right", fx.RightsBasic | fx.RightManageJob, fx.JobPolicyBasic, fx.ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			child, status := s.JobCreate(root, 0)
			require.Equal(t, fx.OK, status)
			child, status = s.HandleReplace(child, tt.rights)
			require.Equal(t, fx.OK, status)
			assert.Equal(t, tt.status, s.JobSetPolicy(child, fx.JobPolicyRelative, tt.topic, deny))
		})
	}

	t.Run("job with children", func(t *testing.T) {
		assert.Equal(t, fx.ErrBadState, s.JobSetPolicy(root, fx.JobPolicyRelative, fx.JobPolicyBasic, deny))
	})
}

// sandbox creates a child job with policy and a process inside it, and
// returns that process's syscall surface.
func sandbox(t *testing.T, s *System, policy []fx.PolicyBasic) *System {
	t.Helper()
	job, status := s.JobCreate(grantRootJob(t, s), 0)
	require.Equal(t, fx.OK, status)
	require.Equal(t, fx.OK, s.JobSetPolicy(job, fx.JobPolicyAbsolute, fx.JobPolicyBasic, policy))
	h := mustProcess(t, s, job, "sandboxed")
	return s.k.System(processOf(t, s, h))
}

func TestPolicyOnObjectCreation(t *testing.T) {
	k := newTestKernel(t)
	s := newTestSystem(t, k)

	creators := map[string]func(s *System) fx.Status{
		"channel": func(s *System) fx.Status {
			_, _, status := s.ChannelCreate(0)
			return status
		},
		"event": func(s *System) fx.Status {
			_, status := s.EventCreate(0)
			return status
		},
		"port": func(s *System) fx.Status {
			_, status := s.PortCreate(0)
			return status
		},
		"vmo": func(s *System) fx.Status {
			_, status := s.VmoCreate(1, 0)
			return status
		},
	}

	tests := []struct {
		name    string
		policy  []fx.PolicyBasic
		creator string
		status  fx.Status
	}{
		{"channel denied", []fx.PolicyBasic{{Condition: fx.PolicyNewChannel, Action: fx.PolicyActionDeny}}, "channel", fx.ErrAccessDenied},
		{"other creations allowed", []fx.PolicyBasic{{Condition: fx.PolicyNewChannel, Action: fx.PolicyActionDeny}}, "event", fx.OK},
		{"new any covers ports", []fx.PolicyBasic{{Condition: fx.PolicyNewAny, Action: fx.PolicyActionDeny}}, "port", fx.ErrAccessDenied},
		{"specific allow beats new any", []fx.PolicyBasic{
			{Condition: fx.PolicyNewAny, Action: fx.PolicyActionDeny},
			{Condition: fx.PolicyNewVmo, Action: fx.PolicyActionAllow},
		}, "vmo", fx.OK},
		{"allow with exception", []fx.PolicyBasic{{Condition: fx.PolicyNewEvent, Action: fx.PolicyActionAllowException}}, "event", fx.OK},
		{"deny with exception", []fx.PolicyBasic{{Condition: fx.PolicyNewEvent, Action: fx.PolicyActionDenyException}}, "event", fx.ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := sandbox(t, s, tt.policy)
			assert.Equal(t, tt.status, creators[tt.creator](sub))
		})
	}

	t.Run("kill", func(t *testing.T) {
		sub := sandbox(t, s, []fx.PolicyBasic{{Condition: fx.PolicyNewVmo, Action: fx.PolicyActionKill}})
		_, status := sub.VmoCreate(1, 0)
		assert.Equal(t, fx.ErrAccessDenied, status)
		assert.Equal(t, object.ProcessDead, sub.Process().State())
		assert.Equal(t, fx.TaskRetcodePolicyKill, sub.Process().Retcode())
	})

	t.Run("process creation", func(t *testing.T) {
		sub := sandbox(t, s, []fx.PolicyBasic{{Condition: fx.PolicyNewProcess, Action: fx.PolicyActionDeny}})
		job := grant(t, sub, sub.Process().Job(), fx.DefaultJobRights)
		_, status := sub.ProcessCreate(job, "child", 0)
		assert.Equal(t, fx.ErrAccessDenied, status)
	})
}

func TestProcessCreate(t *testing.T) {
	k := newTestKernel(t)
	s := newTestSystem(t, k)
	root := grantRootJob(t, s)

	h := mustProcess(t, s, root, "a-process-name-longer-than-thirty-two-bytes")
	p := processOf(t, s, h)
	assert.Len(t, p.Name(), fx.MaxNameLen)
	assert.Equal(t, object.ProcessInitial, p.State())
	assert.Equal(t, k.RootJob(), p.Job())

	info, status := s.ObjectGetInfo(h, fx.TopicHandleBasic)
	require.Equal(t, fx.OK, status)
	assert.Equal(t, fx.DefaultProcessRights, info.Rights)

	_, status = s.ProcessCreate(root, "x", 1)
	assert.Equal(t, fx.ErrInvalidArgs, status)

	weak, status := s.HandleDuplicate(root, fx.RightsBasic|fx.RightManageJob)
	require.Equal(t, fx.OK, status)
	_, status = s.ProcessCreate(weak, "x", 0)
	assert.Equal(t, fx.ErrAccessDenied, status)

	t.Run("killed job", func(t *testing.T) {
		job, status := s.JobCreate(root, 0)
		require.Equal(t, fx.OK, status)
		require.Equal(t, fx.OK, s.TaskKill(job))
		_, status = s.ProcessCreate(job, "late", 0)
		assert.Equal(t, fx.ErrBadState, status)
	})

	t.Run("unreferenced process dies", func(t *testing.T) {
		h := mustProcess(t, s, root, "orphan")
		p := processOf(t, s, h)
		require.Equal(t, fx.OK, s.HandleClose(h))
		assert.Equal(t, object.ProcessDead, p.State())
	})
}

func TestProcessStart(t *testing.T) {
	k := newTestKernel(t)
	s := newTestSystem(t, k)
	root := grantRootJob(t, s)

	register(t, k, "exit42", func(context.Context, *System, fx.Handle) int64 {
		return 42
	})
	register(t, k, "greeter", func(_ context.Context, sys *System, arg fx.Handle) int64 {
		if status := sys.ChannelWrite(arg, 0, []byte("hello"), nil); status != fx.OK {
			return int64(status)
		}
		return 0
	})
	register(t, k, "exit-call", func(_ context.Context, sys *System, _ fx.Handle) int64 {
		sys.ProcessExit(7)
		return 0
	})

	t.Run("exit code", func(t *testing.T) {
		h := mustProcess(t, s, root, "exit42")
		require.Equal(t, fx.OK, s.ProcessStart(h, "exit42", fx.HandleInvalid))
		waitTerminated(t, s, h)
		assert.Equal(t, int64(42), processOf(t, s, h).Retcode())
	})

	t.Run("process exit wins", func(t *testing.T) {
		h := mustProcess(t, s, root, "exit-call")
		require.Equal(t, fx.OK, s.ProcessStart(h, "exit-call", fx.HandleInvalid))
		waitTerminated(t, s, h)
		assert.Equal(t, int64(7), processOf(t, s, h).Retcode())
	})

	t.Run("arg is moved into the process", func(t *testing.T) {
		h := mustProcess(t, s, root, "greeter")
		local, remote := mustChannel(t, s)

		require.Equal(t, fx.OK, s.ProcessStart(h, "greeter", remote))
		assert.False(t, s.table.IsHandleValid(remote))

		waitTerminated(t, s, h)
		assert.Equal(t, int64(0), processOf(t, s, h).Retcode())

		msg, status := s.ChannelRead(local, 0, 64, 0)
		require.Equal(t, fx.OK, status)
		assert.Equal(t, "hello", string(msg.Data))
	})

	tests := []struct {
		name    string
		program string
		rights  fx.Rights
		argOK   bool
		status  fx.Status
	}{
		{"unknown program", "missing", fx.RightSameRights, true, fx.ErrNotFound},
		{"no write right", "exit42", fx.RightsBasic, true, fx.ErrAccessDenied},
		{"arg without transfer", "exit42", fx.RightSameRights, false, fx.ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := mustProcess(t, s, root, tt.name)
			h, status := s.HandleReplace(h, tt.rights)
			require.Equal(t, fx.OK, status)

			arg := mustEvent(t, s)
			if !tt.argOK {
				arg, status = s.HandleReplace(arg, fx.RightWait)
				require.Equal(t, fx.OK, status)
			}
			assert.Equal(t, tt.status, s.ProcessStart(h, tt.program, arg))
			assert.False(t, s.table.IsHandleValid(arg), "arg is consumed")
			assert.Equal(t, object.ProcessInitial, processOf(t, s, h).State())
		})
	}

	t.Run("started twice", func(t *testing.T) {
		register(t, k, "block", func(ctx context.Context, _ *System, _ fx.Handle) int64 {
			<-ctx.Done()
			return -1
		})
		h := mustProcess(t, s, root, "block")
		require.Equal(t, fx.OK, s.ProcessStart(h, "block", fx.HandleInvalid))

		arg := mustEvent(t, s)
		before := k.Arena().Live()
		assert.Equal(t, fx.ErrBadState, s.ProcessStart(h, "block", arg))
		assert.Equal(t, before-1, k.Arena().Live(), "arg is closed")
		assert.Zero(t, processOf(t, s, h).HandleTable().HandleCount())

		require.Equal(t, fx.OK, s.TaskKill(h))
		waitTerminated(t, s, h)
	})
}

func TestTaskKill(t *testing.T) {
	k := newTestKernel(t)
	s := newTestSystem(t, k)
	root := grantRootJob(t, s)

	register(t, k, "block", func(ctx context.Context, _ *System, _ fx.Handle) int64 {
		<-ctx.Done()
		return -1
	})

	t.Run("process", func(t *testing.T) {
		h := mustProcess(t, s, root, "victim")
		require.Equal(t, fx.OK, s.ProcessStart(h, "block", fx.HandleInvalid))

		require.Equal(t, fx.OK, s.TaskKill(h))
		waitTerminated(t, s, h)
		assert.Equal(t, fx.TaskRetcodeSyscallKill, processOf(t, s, h).Retcode())

		assert.Equal(t, fx.OK, s.TaskKill(h), "killing a dead process is a no-op")
	})

	t.Run("job", func(t *testing.T) {
		job, status := s.JobCreate(root, 0)
		require.Equal(t, fx.OK, status)
		inner, status := s.JobCreate(job, 0)
		require.Equal(t, fx.OK, status)

		p1 := mustProcess(t, s, job, "p1")
		p2 := mustProcess(t, s, inner, "p2")
		require.Equal(t, fx.OK, s.ProcessStart(p1, "block", fx.HandleInvalid))
		require.Equal(t, fx.OK, s.ProcessStart(p2, "block", fx.HandleInvalid))

		require.Equal(t, fx.OK, s.TaskKill(job))
		waitTerminated(t, s, p1)
		waitTerminated(t, s, p2)

		observed, status := s.ObjectWaitOne(context.Background(), job, fx.JobTerminated, fx.TimeInfinitePast)
		require.Equal(t, fx.OK, status)
		assert.Equal(t, fx.JobTerminated, observed&fx.JobTerminated)
	})

	t.Run("needs destroy right", func(t *testing.T) {
		h := mustProcess(t, s, root, "guarded")
		weak, status := s.HandleReplace(h, fx.RightsBasic)
		require.Equal(t, fx.OK, status)
		assert.Equal(t, fx.ErrAccessDenied, s.TaskKill(weak))
	})

	t.Run("not a task", func(t *testing.T) {
		ev := grant(t, s, object.NewEvent(nil), fx.DefaultEventRights|fx.RightDestroy)
		assert.Equal(t, fx.ErrWrongType, s.TaskKill(ev))
	})
}
