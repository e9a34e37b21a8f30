package object

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
)

// testDispatcher counts OnZeroHandles calls.
type testDispatcher struct {
	BaseDispatcher
	zero atomic.Int32
}

func newTestDispatcher() *testDispatcher {
	d := &testDispatcher{}
	d.init(fx.SignalNone, nil)
	return d
}

func (d *testDispatcher) Type() fx.ObjType         { return fx.ObjTypeEvent }
func (d *testDispatcher) DefaultRights() fx.Rights { return fx.DefaultEventRights }
func (d *testDispatcher) OnZeroHandles()           { d.zero.Add(1) }

// countingObserver records how it was completed.
type countingObserver struct {
	matched  atomic.Int32
	canceled atomic.Int32
	signals  atomic.Uint32
}

func (o *countingObserver) OnMatch(s fx.Signals) {
	o.signals.Store(uint32(s))
	o.matched.Add(1)
}

func (o *countingObserver) OnCancel(s fx.Signals) {
	o.signals.Store(uint32(s))
	o.canceled.Add(1)
}

func newTestArena(t *testing.T, capacity uint32) (*Arena, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	return NewArena(ArenaConfig{Capacity: capacity}, nil, metrics), metrics
}

// mustMake publishes d with its default rights.
func mustMake(t *testing.T, a *Arena, d Dispatcher) *Handle {
	t.Helper()
	h, status := a.Make(NewKernelHandle(d), d.DefaultRights())
	require.Equal(t, fx.OK, status)
	return h
}

func newTestProcess(t *testing.T, a *Arena, job *JobDispatcher) *ProcessDispatcher {
	t.Helper()
	p, status := NewProcess(job, t.Name(), ProcessOptions{Arena: a})
	require.Equal(t, fx.OK, status)
	return p
}

// mustAdd installs h in table and returns its value.
func mustAdd(t *testing.T, table *HandleTable, h *Handle) fx.Handle {
	t.Helper()
	value, status := table.AddHandle(h)
	require.Equal(t, fx.OK, status)
	return value
}
