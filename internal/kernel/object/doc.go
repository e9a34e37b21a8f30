/*
Package object implements the kernel object model: dispatchers, handles and
the tables that map process-visible handle values to them.

# Overview

Every kernel object (job, process, channel, port, event, vmo) is a
Dispatcher. A dispatcher embeds a BaseDispatcher carrying its koid, an atomic
handle count, an atomic signal bitset and the list of observers waiting on
those signals.

Handles are capabilities: a dispatcher reference plus a rights mask. They are
allocated from an Arena, a bounded slab whose slots carry a generation so a
value that outlived its handle never resolves to the slot's next occupant.
Each process owns a HandleTable that stamps its koid on every handle it holds
and refuses to resolve handles owned by anyone else.

# Lifecycle

	kh := object.NewKernelHandle(channel)
	defer kh.Close()

	h, status := arena.Make(kh, fx.DefaultChannelRights)
	if status != fx.OK {
		return status
	}
	value, status := process.HandleTable().AddHandle(h)

When the last handle to a dispatcher is deleted from the arena, the
dispatcher's OnZeroHandles hook runs exactly once. A KernelHandle that is
closed without ever being published runs the same hook.

# Locking

Signal raises and observer notification happen under the dispatcher's lock.
Channel endpoints share one lock between the pair. A port observer queues its
packet under the observed object's lock and then takes the port's queue lock,
never the other way round. Handle tables apply the bad-handle policy only
after releasing their own lock.
*/
package object
