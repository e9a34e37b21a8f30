package object

import (
	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
)

// EventDispatcher is an object whose only state is its signals
type EventDispatcher struct {
	BaseDispatcher
	metrics *monitoring.Metrics
}

// NewEvent creates an event with no signals asserted
func NewEvent(metrics *monitoring.Metrics) *EventDispatcher {
	e := &EventDispatcher{metrics: metrics}
	e.init(fx.SignalNone, nil)
	metrics.RecordDispatcherCreated(fx.ObjTypeEvent.String())
	return e
}

func (e *EventDispatcher) Type() fx.ObjType         { return fx.ObjTypeEvent }
func (e *EventDispatcher) DefaultRights() fx.Rights { return fx.DefaultEventRights }

func (e *EventDispatcher) OnZeroHandles() {
	e.metrics.RecordDispatcherDestroyed(fx.ObjTypeEvent.String())
}
