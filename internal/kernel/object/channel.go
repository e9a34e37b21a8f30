package object

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/eapache/queue"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
)

// ChannelDispatcher is one endpoint of a bidirectional message pipe. Both
// endpoints share a single lock, which guards the peer links, both message
// queues and the call waiters.
type ChannelDispatcher struct {
	BaseDispatcher

	peer     *ChannelDispatcher
	peerKoid fx.Koid

	owner           fx.Koid
	messages        *queue.Queue
	waiters         []*MessageWaiter
	maxMessageCount int
	peerHasClosed   bool
	txid            fx.TxID

	limit   int
	metrics *monitoring.Metrics
}

// ChannelOptions configure a channel pair
type ChannelOptions struct {
	// MaxMessages caps each endpoint's queue. Zero means unlimited.
	MaxMessages int
	Metrics     *monitoring.Metrics
}

// NewChannelPair creates two linked endpoints
func NewChannelPair(opts ChannelOptions) (*ChannelDispatcher, *ChannelDispatcher) {
	lock := &sync.Mutex{}
	c0 := &ChannelDispatcher{messages: queue.New(), limit: opts.MaxMessages, metrics: opts.Metrics}
	c1 := &ChannelDispatcher{messages: queue.New(), limit: opts.MaxMessages, metrics: opts.Metrics}
	c0.init(fx.ChannelWritable, lock)
	c1.init(fx.ChannelWritable, lock)

	c0.peer, c0.peerKoid = c1, c1.Koid()
	c1.peer, c1.peerKoid = c0, c0.Koid()

	opts.Metrics.RecordDispatcherCreated(fx.ObjTypeChannel.String())
	opts.Metrics.RecordDispatcherCreated(fx.ObjTypeChannel.String())
	return c0, c1
}

func (c *ChannelDispatcher) Type() fx.ObjType         { return fx.ObjTypeChannel }
func (c *ChannelDispatcher) DefaultRights() fx.Rights { return fx.DefaultChannelRights }
func (c *ChannelDispatcher) RelatedKoid() fx.Koid     { return c.peerKoid }
func (c *ChannelDispatcher) PeerKoid() fx.Koid        { return c.peerKoid }

func (c *ChannelDispatcher) SetOwner(owner fx.Koid) {
	c.lock.Lock()
	c.owner = owner
	c.lock.Unlock()
}

// MessageCount returns the number of queued messages
func (c *ChannelDispatcher) MessageCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.messages.Length()
}

// MaxMessageCount returns the high-water mark of the queue
func (c *ChannelDispatcher) MaxMessageCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.maxMessageCount
}

// PeerHasClosed reports whether the other endpoint is gone
func (c *ChannelDispatcher) PeerHasClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.peerHasClosed
}

// checkOwnerLocked rejects a caller that no longer holds the endpoint, which
// happens when a write races the handle's transfer to another process.
func (c *ChannelDispatcher) checkOwnerLocked(owner fx.Koid) fx.Status {
	if c.owner != owner {
		return fx.ErrBadHandle
	}
	return fx.OK
}

// Write queues msg on the peer. On failure the caller still owns msg.
func (c *ChannelDispatcher) Write(owner fx.Koid, msg *MessagePacket) fx.Status {
	c.lock.Lock()
	defer c.lock.Unlock()

	if status := c.checkOwnerLocked(owner); status != fx.OK {
		return status
	}
	if c.peer == nil {
		return fx.ErrPeerClosed
	}
	if c.peer.tryWriteToMessageWaiterLocked(msg) {
		return fx.OK
	}
	return c.peer.writeSelfLocked(msg)
}

// tryWriteToMessageWaiterLocked hands msg to a pending Call with the same
// kernel transaction id.
func (c *ChannelDispatcher) tryWriteToMessageWaiterLocked(msg *MessagePacket) bool {
	txid := msg.TxID()
	if txid < MinKernelTxID {
		return false
	}
	for i, w := range c.waiters {
		if w.txid == txid {
			c.waiters = slices.Delete(c.waiters, i, i+1)
			w.deliver(msg, fx.OK)
			return true
		}
	}
	return false
}

func (c *ChannelDispatcher) writeSelfLocked(msg *MessagePacket) fx.Status {
	if c.limit > 0 && c.messages.Length() >= c.limit {
		return fx.ErrShouldWait
	}
	c.messages.Add(msg)
	if n := c.messages.Length(); n > c.maxMessageCount {
		c.maxMessageCount = n
	}
	c.metrics.RecordChannelMessage()

	if old := c.RaiseSignalsLocked(fx.ChannelReadable); old&fx.ChannelReadable == 0 {
		c.NotifyObserversLocked(c.Signals())
	}
	return fx.OK
}

// ReadResult describes the message at the head of the queue
type ReadResult struct {
	Message       *MessagePacket
	ActualBytes   uint32
	ActualHandles uint32
}

// Read dequeues the next message if it fits maxBytes and maxHandles. A
// message that does not fit stays queued and BUFFER_TOO_SMALL is returned
// with its sizes, unless mayDiscard is set, in which case it is dropped.
func (c *ChannelDispatcher) Read(owner fx.Koid, maxBytes, maxHandles uint32, mayDiscard bool) (ReadResult, fx.Status) {
	c.lock.Lock()

	if status := c.checkOwnerLocked(owner); status != fx.OK {
		c.lock.Unlock()
		return ReadResult{}, status
	}
	if c.messages.Length() == 0 {
		peerClosed := c.peerHasClosed
		c.lock.Unlock()
		if peerClosed {
			return ReadResult{}, fx.ErrPeerClosed
		}
		return ReadResult{}, fx.ErrShouldWait
	}

	msg := c.messages.Peek().(*MessagePacket)
	result := ReadResult{ActualBytes: msg.DataSize(), ActualHandles: msg.NumHandles()}
	tooSmall := result.ActualBytes > maxBytes || result.ActualHandles > maxHandles
	if tooSmall && !mayDiscard {
		c.lock.Unlock()
		return result, fx.ErrBufferTooSmall
	}

	c.messages.Remove()
	if c.messages.Length() == 0 {
		c.ClearSignals(fx.ChannelReadable)
	}
	c.lock.Unlock()

	if tooSmall {
		msg.Destroy()
		return result, fx.ErrBufferTooSmall
	}
	result.Message = msg
	return result, fx.OK
}

// UserSignalPeer updates user signals on the other endpoint
func (c *ChannelDispatcher) UserSignalPeer(clear, set fx.Signals) fx.Status {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.peer == nil {
		return fx.ErrPeerClosed
	}
	c.peer.UpdateStateLocked(clear, set)
	return fx.OK
}

// OnZeroHandles unlinks the pair, tells the peer it lost its writer, and
// destroys queued messages outside the lock.
func (c *ChannelDispatcher) OnZeroHandles() {
	c.lock.Lock()
	peer := c.peer
	c.peer = nil

	var drained []*MessagePacket
	for c.messages.Length() > 0 {
		drained = append(drained, c.messages.Remove().(*MessagePacket))
	}
	waiters := c.waiters
	c.waiters = nil

	if peer != nil {
		peer.peer = nil
		peer.peerHasClosed = true
		for _, w := range peer.waiters {
			w.deliver(nil, fx.ErrPeerClosed)
		}
		peer.waiters = nil
		peer.UpdateStateLocked(fx.ChannelWritable, fx.ChannelPeerClosed)
	}
	c.lock.Unlock()

	c.metrics.RecordDispatcherDestroyed(fx.ObjTypeChannel.String())
	for _, w := range waiters {
		w.deliver(nil, fx.ErrCanceled)
	}
	for _, msg := range drained {
		msg.Destroy()
	}
}

// ============================================================================
// Call
// ============================================================================

// MessageWaiter is a pending Call waiting for the reply with its txid
type MessageWaiter struct {
	txid   fx.TxID
	done   chan struct{}
	reply  *MessagePacket
	status fx.Status
}

func (w *MessageWaiter) deliver(msg *MessagePacket, status fx.Status) {
	w.reply = msg
	w.status = status
	close(w.done)
}

func (c *ChannelDispatcher) nextTxIDLocked() fx.TxID {
	c.txid++
	return c.txid | MinKernelTxID
}

// Call writes msg stamped with a fresh kernel transaction id and waits for
// the peer's reply, ctx's end, or the peer closing. Call always consumes
// msg: if it cannot be written its handles are deleted.
func (c *ChannelDispatcher) Call(ctx context.Context, owner fx.Koid, msg *MessagePacket) (*MessagePacket, fx.Status) {
	if msg.DataSize() < 4 {
		msg.Destroy()
		return nil, fx.ErrInvalidArgs
	}
	w := &MessageWaiter{done: make(chan struct{})}

	c.lock.Lock()
	status := c.checkOwnerLocked(owner)
	if status == fx.OK && c.peer == nil {
		status = fx.ErrPeerClosed
	}
	if status == fx.OK {
		w.txid = c.nextTxIDLocked()
		msg.SetTxID(w.txid)
		c.waiters = append(c.waiters, w)
		if status = c.peer.writeSelfLocked(msg); status != fx.OK {
			c.waiters = c.waiters[:len(c.waiters)-1]
		}
	}
	c.lock.Unlock()
	if status != fx.OK {
		msg.Destroy()
		return nil, status
	}

	select {
	case <-w.done:
		return w.reply, w.status
	case <-ctx.Done():
	}

	c.lock.Lock()
	i := slices.Index(c.waiters, w)
	if i >= 0 {
		c.waiters = slices.Delete(c.waiters, i, i+1)
	}
	c.lock.Unlock()

	if i < 0 {
		// The reply won the race with ctx.
		<-w.done
		return w.reply, w.status
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fx.ErrTimedOut
	}
	return nil, fx.ErrCanceled
}
