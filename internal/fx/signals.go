package fx

import "fmt"

// Signals is the per-object bitset of observable state.
type Signals uint32

const (
	SignalNone Signals = 0

	ObjectSignal0  Signals = 1 << 0
	ObjectSignal1  Signals = 1 << 1
	ObjectSignal2  Signals = 1 << 2
	ObjectSignal3  Signals = 1 << 3
	ObjectSignal4  Signals = 1 << 4
	ObjectSignal5  Signals = 1 << 5
	ObjectSignal22 Signals = 1 << 22

	// Raised on a waiter when the handle it waited through was closed.
	SignalHandleClosed Signals = 1 << 23

	UserSignal0   Signals = 1 << 24
	UserSignal1   Signals = 1 << 25
	UserSignal2   Signals = 1 << 26
	UserSignal3   Signals = 1 << 27
	UserSignal4   Signals = 1 << 28
	UserSignal5   Signals = 1 << 29
	UserSignal6   Signals = 1 << 30
	UserSignal7   Signals = 1 << 31
	UserSignalAll Signals = 0xff000000

	ObjectReadable   = ObjectSignal0
	ObjectWritable   = ObjectSignal1
	ObjectPeerClosed = ObjectSignal2

	EventSignaled = ObjectSignal3

	TaskTerminated = ObjectSignal3

	ChannelReadable   = ObjectSignal0
	ChannelWritable   = ObjectSignal1
	ChannelPeerClosed = ObjectSignal2

	JobTerminated     = ObjectSignal3
	JobNoJobs         = ObjectSignal4
	JobNoProcesses    = ObjectSignal5
	ProcessTerminated = ObjectSignal3

	VmoZeroChildren = ObjectSignal3
)

// String renders the bitset in hex
func (s Signals) String() string {
	return fmt.Sprintf("%#08x", uint32(s))
}

// Wait-async options.
const (
	WaitAsyncOnce      uint32 = 0
	WaitAsyncTimestamp uint32 = 1
	WaitAsyncEdge      uint32 = 2
)
