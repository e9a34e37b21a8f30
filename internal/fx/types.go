package fx

import (
	"fmt"
	"math"
	"time"
)

// Koid is a kernel object id, unique for the lifetime of the kernel.
type Koid uint64

const (
	KoidInvalid Koid = 0
	KoidKernel  Koid = 1
	KoidFirst   Koid = 1024
)

// Handle is the opaque, process-scoped integer naming a handle.
type Handle uint32

// HandleInvalid never names a live object.
const HandleInvalid Handle = 0

func (h Handle) String() string {
	return fmt.Sprintf("%#08x", uint32(h))
}

// ObjType tags each dispatcher variant.
type ObjType uint32

const (
	ObjTypeNone    ObjType = 0
	ObjTypeProcess ObjType = 1
	ObjTypeVmo     ObjType = 3
	ObjTypeChannel ObjType = 4
	ObjTypeEvent   ObjType = 5
	ObjTypePort    ObjType = 6
	ObjTypeJob     ObjType = 17
	ObjTypeVmar    ObjType = 18

	// The ABI commits to no more than 64 object types.
	ObjTypeUpperBound = 64
)

func (t ObjType) String() string {
	switch t {
	case ObjTypeNone:
		return "none"
	case ObjTypeProcess:
		return "process"
	case ObjTypeVmo:
		return "vmo"
	case ObjTypeChannel:
		return "channel"
	case ObjTypeEvent:
		return "event"
	case ObjTypePort:
		return "port"
	case ObjTypeJob:
		return "job"
	case ObjTypeVmar:
		return "vmar"
	default:
		return fmt.Sprintf("objtype(%d)", uint32(t))
	}
}

// Time is an absolute monotonic time in nanoseconds since kernel boot.
type Time int64

// Duration is a span of nanoseconds.
type Duration int64

const (
	TimeInfinite     Time = math.MaxInt64
	TimeInfinitePast Time = math.MinInt64
)

// FromDuration converts a Go duration.
func FromDuration(d time.Duration) Duration {
	return Duration(d.Nanoseconds())
}

// Add returns t+d, saturating at the infinite bounds.
func (t Time) Add(d Duration) Time {
	sum := t + Time(d)
	if d > 0 && sum < t {
		return TimeInfinite
	}
	if d < 0 && sum > t {
		return TimeInfinitePast
	}
	return sum
}

// TxID is a channel transaction id, carried in the first four bytes of a
// message.
type TxID uint32

const (
	MaxNameLen = 32

	ChannelMaxMsgBytes   = 65536
	ChannelMaxMsgHandles = 64

	// ChannelReadMayDiscard drops a message that does not fit the buffers.
	ChannelReadMayDiscard uint32 = 1
)

// Task return codes for externally killed tasks.
const (
	TaskRetcodeSyscallKill   int64 = -1024
	TaskRetcodeOOMKill       int64 = -1025
	TaskRetcodePolicyKill    int64 = -1026
	TaskRetcodeVdsoKill      int64 = -1027
	TaskRetcodeExceptionKill int64 = -1028
)

// Object property ids.
const (
	PropName uint32 = 3
)
