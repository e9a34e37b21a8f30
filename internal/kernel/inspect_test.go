package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshx-org/fiber/internal/fx"
)

func TestJobTree(t *testing.T) {
	k := newTestKernel(t)
	s := newTestSystem(t, k)
	root := grantRootJob(t, s)

	child, status := s.JobCreate(root, 0)
	require.Equal(t, fx.OK, status)
	require.Equal(t, fx.OK, s.ObjectSetProperty(child, fx.PropName, []byte("drivers")))
	require.Equal(t, fx.OK, s.JobSetPolicy(child, fx.JobPolicyRelative, fx.JobPolicyBasic, []fx.PolicyBasic{
		{Condition: fx.PolicyNewVmo, Action: fx.PolicyActionDeny},
	}))
	mustProcess(t, s, child, "driver-a")

	tree := k.JobTree()
	assert.Equal(t, "root", tree.Name)
	assert.Equal(t, "job", tree.Type)
	assert.Equal(t, "ready", tree.State)
	require.Len(t, tree.Processes, 1, "the test process")
	assert.Equal(t, t.Name(), tree.Processes[0].Name)

	require.Len(t, tree.Jobs, 1)
	sub := tree.Jobs[0]
	assert.Equal(t, "drivers", sub.Name)
	assert.Equal(t, tree.Koid, sub.RelatedKoid)
	assert.Equal(t, tree.MaxHeight-1, sub.MaxHeight)
	require.Len(t, sub.Policy, 1)
	assert.Equal(t, fx.PolicyNewVmo.String(), sub.Policy[0].Condition)
	assert.Equal(t, fx.PolicyActionDeny.String(), sub.Policy[0].Action)

	require.Len(t, sub.Processes, 1)
	assert.Equal(t, "driver-a", sub.Processes[0].Name)
	assert.Equal(t, "initial", sub.Processes[0].State)
	assert.Empty(t, sub.Jobs)
}

func TestFindObject(t *testing.T) {
	k := newTestKernel(t)
	s := newTestSystem(t, k)

	t.Run("job tree", func(t *testing.T) {
		d, ok := k.FindObject(k.RootJob().Koid())
		require.True(t, ok)
		assert.Equal(t, fx.ObjTypeJob, d.Type())

		p, ok := k.FindProcess(s.Process().Koid())
		require.True(t, ok)
		assert.Equal(t, s.Process(), p)
	})

	t.Run("held by a process", func(t *testing.T) {
		ev := mustEvent(t, s)
		koid := koidOf(t, s, ev)

		d, ok := k.FindObject(koid)
		require.True(t, ok)
		assert.Equal(t, fx.ObjTypeEvent, d.Type())

		require.Equal(t, fx.OK, s.HandleClose(ev))
		_, ok = k.FindObject(koid)
		assert.False(t, ok)
	})

	t.Run("unknown", func(t *testing.T) {
		_, ok := k.FindObject(fx.Koid(1 << 60))
		assert.False(t, ok)
		_, ok = k.FindProcess(k.RootJob().Koid())
		assert.False(t, ok, "a job is not a process")
	})
}

func TestProcessHandles(t *testing.T) {
	k := newTestKernel(t)
	s := newTestSystem(t, k)

	h0, _ := mustChannel(t, s)
	require.Equal(t, fx.OK, s.ObjectSignal(h0, 0, fx.UserSignal0))

	handles, ok := k.ProcessHandles(s.Process().Koid())
	require.True(t, ok)
	require.Len(t, handles, 2)

	var found bool
	for _, h := range handles {
		assert.Equal(t, "channel", h.Object.Type)
		assert.Equal(t, fx.DefaultChannelRights.String(), h.Rights)
		if h.Value == h0.String() {
			found = true
			assert.Equal(t, (fx.ChannelWritable | fx.UserSignal0).String(), h.Object.Signals)
			assert.NotZero(t, h.Object.RelatedKoid)
		}
	}
	assert.True(t, found)

	_, ok = k.ProcessHandles(k.RootJob().Koid())
	assert.False(t, ok)
}
