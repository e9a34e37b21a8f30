package object

import "github.com/meshx-org/fiber/internal/fx"

// Waiter is a one-shot observer a blocking wait parks on. Done is closed
// when the observed signals match or the handle waited through is closed.
type Waiter struct {
	done     chan struct{}
	observed fx.Signals
	canceled bool
}

func NewWaiter() *Waiter {
	return &Waiter{done: make(chan struct{})}
}

func (w *Waiter) OnMatch(signals fx.Signals) {
	w.observed = signals
	close(w.done)
}

func (w *Waiter) OnCancel(signals fx.Signals) {
	w.observed = signals | fx.SignalHandleClosed
	w.canceled = true
	close(w.done)
}

func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Result is valid once Done is closed. canceled is true if the handle was
// closed while waiting.
func (w *Waiter) Result() (observed fx.Signals, canceled bool) {
	return w.observed, w.canceled
}
