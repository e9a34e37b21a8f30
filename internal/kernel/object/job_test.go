package object

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshx-org/fiber/internal/fx"
)

func TestJobHeight(t *testing.T) {
	root := NewRootJob(2, nil)

	child, status := NewJob(root)
	require.Equal(t, fx.OK, status)
	assert.Equal(t, uint32(1), child.MaxHeight())
	assert.Equal(t, root.Koid(), child.RelatedKoid())
	assert.Equal(t, fx.KoidInvalid, root.RelatedKoid())

	grandchild, status := NewJob(child)
	require.Equal(t, fx.OK, status)
	assert.Zero(t, grandchild.MaxHeight())

	_, status = NewJob(grandchild)
	assert.Equal(t, fx.ErrOutOfRange, status)
}

func TestJobChildSignals(t *testing.T) {
	a, _ := newTestArena(t, 16)
	root := NewRootJob(4, nil)
	assert.Equal(t, fx.JobNoJobs|fx.JobNoProcesses, root.Signals())

	child, status := NewJob(root)
	require.Equal(t, fx.OK, status)
	assert.Zero(t, root.Signals()&fx.JobNoJobs)
	assert.Equal(t, []*JobDispatcher{child}, root.ChildJobs())

	p := newTestProcess(t, a, root)
	assert.Zero(t, root.Signals()&fx.JobNoProcesses)
	assert.Equal(t, []*ProcessDispatcher{p}, root.Processes())

	p.Exit(0)
	assert.NotZero(t, root.Signals()&fx.JobNoProcesses)
	assert.Empty(t, root.Processes())
}

func TestJobPolicy(t *testing.T) {
	deny := fx.PolicyBasic{Condition: fx.PolicyNewChannel, Action: fx.PolicyActionDeny}
	allow := fx.PolicyBasic{Condition: fx.PolicyNewChannel, Action: fx.PolicyActionAllow}

	tests := []struct {
		name    string
		mode    uint32
		first   []fx.PolicyBasic
		second  []fx.PolicyBasic
		want    fx.Status
		wantAct fx.PolicyAction
	}{
		{"relative conflict is skipped", fx.JobPolicyRelative, []fx.PolicyBasic{deny}, []fx.PolicyBasic{allow}, fx.OK, fx.PolicyActionDeny},
		{"absolute conflict fails", fx.JobPolicyAbsolute, []fx.PolicyBasic{deny}, []fx.PolicyBasic{allow}, fx.ErrAlreadyExists, fx.PolicyActionDeny},
		{"absolute repeat is fine", fx.JobPolicyAbsolute, []fx.PolicyBasic{deny}, []fx.PolicyBasic{deny}, fx.OK, fx.PolicyActionDeny},
		{"bad mode", 7, nil, []fx.PolicyBasic{deny}, fx.ErrInvalidArgs, fx.PolicyActionAllow},
		{"bad condition", fx.JobPolicyRelative, nil, []fx.PolicyBasic{{Condition: 99}}, fx.ErrInvalidArgs, fx.PolicyActionAllow},
		{"bad action", fx.JobPolicyRelative, nil, []fx.PolicyBasic{{Condition: fx.PolicyNewChannel, Action: 99}}, fx.ErrInvalidArgs, fx.PolicyActionAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewRootJob(4, nil)
			if tt.first != nil {
				require.Equal(t, fx.OK, job.SetBasicPolicy(fx.JobPolicyAbsolute, tt.first))
			}
			assert.Equal(t, tt.want, job.SetBasicPolicy(tt.mode, tt.second))
			assert.Equal(t, tt.wantAct, job.Policy().Action(fx.PolicyNewChannel))
		})
	}
}

func TestJobPolicyNewAnyFallback(t *testing.T) {
	job := NewRootJob(4, nil)
	require.Equal(t, fx.OK, job.SetBasicPolicy(fx.JobPolicyAbsolute, []fx.PolicyBasic{
		{Condition: fx.PolicyNewAny, Action: fx.PolicyActionDeny},
		{Condition: fx.PolicyNewPort, Action: fx.PolicyActionAllow},
	}))

	policy := job.Policy()
	assert.Equal(t, fx.PolicyActionDeny, policy.Action(fx.PolicyNewChannel))
	assert.Equal(t, fx.PolicyActionAllow, policy.Action(fx.PolicyNewPort))
	assert.Equal(t, fx.PolicyActionAllow, policy.Action(fx.PolicyBadHandle), "not an object-creation condition")
	assert.Len(t, policy.Entries(), 2)
}

func TestJobPolicyIsInherited(t *testing.T) {
	root := NewRootJob(4, nil)
	require.Equal(t, fx.OK, root.SetBasicPolicy(fx.JobPolicyAbsolute, []fx.PolicyBasic{
		{Condition: fx.PolicyNewEvent, Action: fx.PolicyActionDeny},
	}))

	child, status := NewJob(root)
	require.Equal(t, fx.OK, status)
	assert.Equal(t, fx.PolicyActionDeny, child.Policy().Action(fx.PolicyNewEvent))

	assert.Equal(t, fx.ErrBadState, root.SetBasicPolicy(fx.JobPolicyRelative, nil), "policy is frozen once the job has children")
}

func TestJobKillCascades(t *testing.T) {
	a, _ := newTestArena(t, 16)
	root := NewRootJob(4, nil)
	child, status := NewJob(root)
	require.Equal(t, fx.OK, status)

	idle := newTestProcess(t, a, child)
	running := newTestProcess(t, a, child)
	require.Equal(t, fx.OK, running.Start(nil, func(ctx context.Context, _ fx.Handle) int64 {
		<-ctx.Done()
		return 0
	}))

	w := NewWaiter()
	child.AddObserver(w, nil, fx.JobTerminated, false)

	assert.True(t, root.Kill(-7))
	assert.False(t, root.Kill(-8))

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("child job never terminated")
	}
	assert.Equal(t, JobDead, child.State())
	assert.Equal(t, JobDead, root.State())
	assert.Equal(t, ProcessDead, idle.State())
	assert.Equal(t, int64(-7), idle.Retcode())

	require.Eventually(t, func() bool { return running.State() == ProcessDead }, time.Second, time.Millisecond)
	assert.Equal(t, int64(-7), running.Retcode(), "the first terminate wins")

	_, status = NewProcess(child, "late", ProcessOptions{Arena: a})
	assert.Equal(t, fx.ErrBadState, status)
}

func TestJobZeroHandles(t *testing.T) {
	a, _ := newTestArena(t, 16)

	t.Run("empty child dies", func(t *testing.T) {
		root := NewRootJob(4, nil)
		child, status := NewJob(root)
		require.Equal(t, fx.OK, status)

		a.Delete(mustMake(t, a, child))
		assert.Equal(t, JobDead, child.State())
		assert.Empty(t, root.ChildJobs())
	})

	t.Run("child with a process lives on", func(t *testing.T) {
		root := NewRootJob(4, nil)
		child, status := NewJob(root)
		require.Equal(t, fx.OK, status)
		p := newTestProcess(t, a, child)
		require.Equal(t, fx.OK, p.Start(nil, func(context.Context, fx.Handle) int64 { return 0 }))
		ph := mustMake(t, a, p)

		a.Delete(mustMake(t, a, child))
		a.Delete(ph)
		require.Eventually(t, func() bool { return child.State() == JobDead }, time.Second, time.Millisecond)
		assert.Empty(t, root.ChildJobs())
	})

	t.Run("root survives", func(t *testing.T) {
		root := NewRootJob(4, nil)
		a.Delete(mustMake(t, a, root))
		assert.Equal(t, JobReady, root.State())
	})
}
