package fx

// PacketType distinguishes the payload of a port packet.
type PacketType uint32

const (
	PacketTypeUser      PacketType = 0
	PacketTypeSignalOne PacketType = 1
	PacketTypeSignalRep PacketType = 2
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeUser:
		return "user"
	case PacketTypeSignalOne:
		return "signal_one"
	case PacketTypeSignalRep:
		return "signal_rep"
	default:
		return "unknown"
	}
}

// PacketSignal is the payload of a signal packet.
type PacketSignal struct {
	Trigger   Signals
	Observed  Signals
	Count     uint64
	Timestamp Time
	Reserved1 uint64
}

// PacketUser is the opaque 32-byte payload of a user packet.
type PacketUser [32]byte

// PortPacket is what port_wait returns. Exactly one of User and Signal is
// meaningful, selected by Type.
type PortPacket struct {
	Key    uint64
	Type   PacketType
	Status Status
	User   PacketUser
	Signal PacketSignal
}

// HandleOp selects what channel_write_etc does with a handle.
type HandleOp uint32

const (
	HandleOpMove      HandleOp = 0
	HandleOpDuplicate HandleOp = 1
)

// HandleDisposition describes one handle passed to channel_write_etc.
// Result is filled in per handle.
type HandleDisposition struct {
	Operation HandleOp
	Handle    Handle
	Type      ObjType
	Rights    Rights
	Result    Status
}

// HandleInfo describes one handle returned by channel_read_etc.
type HandleInfo struct {
	Handle Handle
	Type   ObjType
	Rights Rights
}

// InfoTopic selects what object_get_info reports.
type InfoTopic uint32

const (
	TopicNone        InfoTopic = 0
	TopicHandleValid InfoTopic = 1
	TopicHandleBasic InfoTopic = 2
)

// InfoHandleBasic is the record returned for TopicHandleBasic.
type InfoHandleBasic struct {
	Koid        Koid
	Rights      Rights
	Type        ObjType
	RelatedKoid Koid
	Reserved    uint32
}
