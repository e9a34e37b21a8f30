package object

import (
	"encoding/binary"

	"github.com/meshx-org/fiber/internal/fx"
)

// MinKernelTxID is the first transaction id reserved for channel calls made
// through the kernel. Only replies carrying such an id can complete a call.
const MinKernelTxID fx.TxID = 0x80000000

// MessagePacket is one channel message: bytes plus in-flight handles. The
// packet owns its handles until they are installed in a reader's table.
type MessagePacket struct {
	data    []byte
	handles []*Handle
}

// NewMessagePacket copies data and takes ownership of handles
func NewMessagePacket(data []byte, handles []*Handle) (*MessagePacket, fx.Status) {
	if len(data) > fx.ChannelMaxMsgBytes || len(handles) > fx.ChannelMaxMsgHandles {
		return nil, fx.ErrOutOfRange
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &MessagePacket{data: buf, handles: handles}, fx.OK
}

func (m *MessagePacket) Data() []byte       { return m.data }
func (m *MessagePacket) Handles() []*Handle { return m.handles }
func (m *MessagePacket) DataSize() uint32   { return uint32(len(m.data)) }
func (m *MessagePacket) NumHandles() uint32 { return uint32(len(m.handles)) }

// TxID returns the transaction id stored in the first four bytes
func (m *MessagePacket) TxID() fx.TxID {
	if len(m.data) < 4 {
		return 0
	}
	return fx.TxID(binary.LittleEndian.Uint32(m.data))
}

// SetTxID overwrites the transaction id. Messages shorter than four bytes
// carry none.
func (m *MessagePacket) SetTxID(txid fx.TxID) {
	if len(m.data) < 4 {
		return
	}
	binary.LittleEndian.PutUint32(m.data, uint32(txid))
}

// TakeHandles transfers ownership of the handles to the caller
func (m *MessagePacket) TakeHandles() []*Handle {
	hs := m.handles
	m.handles = nil
	return hs
}

// Destroy deletes any handles the packet still owns
func (m *MessagePacket) Destroy() {
	for _, h := range m.TakeHandles() {
		h.Delete()
	}
}
