package procargs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Header constants of the startup message
const (
	Protocol uint32 = 0x4150585d
	Version  uint32 = 0x0001000

	HeaderSize = 36
)

// HandleType says what a handle in a startup message is for
type HandleType uint8

const (
	HandleNone       HandleType = 0x00
	HandleProcSelf   HandleType = 0x01
	HandleJobDefault HandleType = 0x03
	HandleUser0      HandleType = 0xF0
	HandleUser1      HandleType = 0xF1
	HandleUser2      HandleType = 0xF2
)

func (t HandleType) String() string {
	switch t {
	case HandleProcSelf:
		return "proc_self"
	case HandleJobDefault:
		return "job_default"
	case HandleUser0:
		return "user0"
	case HandleUser1:
		return "user1"
	case HandleUser2:
		return "user2"
	}
	return fmt.Sprintf("handle_type(%#x)", uint8(t))
}

func (t HandleType) known() bool {
	switch t {
	case HandleProcSelf, HandleJobDefault, HandleUser0, HandleUser1, HandleUser2:
		return true
	}
	return false
}

// HandleInfo tags one handle of a startup message: the type in the low
// byte and a type-specific argument in the upper half.
type HandleInfo uint32

func NewHandleInfo(t HandleType, arg uint16) HandleInfo {
	return HandleInfo(uint32(t) | uint32(arg)<<16)
}

func (h HandleInfo) Type() HandleType { return HandleType(h & 0xFF) }
func (h HandleInfo) Arg() uint16      { return uint16(h >> 16) }

// ParseHandleInfo validates a raw tag. The second byte is reserved.
func ParseHandleInfo(v uint32) (HandleInfo, error) {
	if v&0xFF00 != 0 {
		return 0, fmt.Errorf("%w: handle info %#x has reserved bits set", ErrMalformed, v)
	}
	h := HandleInfo(v)
	if !h.Type().known() {
		return 0, fmt.Errorf("%w: unknown handle type in %#x", ErrMalformed, v)
	}
	return h, nil
}

// ErrMalformed is wrapped by every decoding failure
var ErrMalformed = errors.New("malformed startup message")

// Message is the first message a started process reads from its bootstrap
// channel. Handles[i] tags the i-th handle carried by the channel message.
type Message struct {
	Handles []HandleInfo
	Args    []string
	Environ []string
}

// Marshal lays the message out as header, handle tags, then the
// NUL-terminated args and environment strings.
func (m *Message) Marshal() []byte {
	handleOff := HeaderSize
	argsOff := handleOff + 4*len(m.Handles)
	environOff := argsOff + stringsSize(m.Args)
	size := environOff + stringsSize(m.Environ)

	buf := make([]byte, size)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], Protocol)
	le.PutUint32(buf[4:], Version)
	le.PutUint32(buf[8:], uint32(handleOff))
	le.PutUint32(buf[12:], uint32(argsOff))
	le.PutUint32(buf[16:], uint32(len(m.Args)))
	le.PutUint32(buf[20:], uint32(environOff))
	le.PutUint32(buf[24:], uint32(len(m.Environ)))
	// names_off and names_num stay zero

	for i, h := range m.Handles {
		le.PutUint32(buf[handleOff+4*i:], uint32(h))
	}
	putStrings(buf[argsOff:], m.Args)
	putStrings(buf[environOff:], m.Environ)
	return buf
}

// Unmarshal decodes a startup message that arrived with numHandles handles
func Unmarshal(data []byte, numHandles int) (*Message, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(data))
	}
	le := binary.LittleEndian
	if p := le.Uint32(data[0:]); p != Protocol {
		return nil, fmt.Errorf("%w: protocol %#x", ErrMalformed, p)
	}
	if v := le.Uint32(data[4:]); v != Version {
		return nil, fmt.Errorf("%w: version %#x", ErrMalformed, v)
	}

	m := &Message{}
	handleOff := int(le.Uint32(data[8:]))
	if numHandles > 0 {
		if handleOff < HeaderSize || handleOff+4*numHandles > len(data) {
			return nil, fmt.Errorf("%w: handle info out of bounds", ErrMalformed)
		}
		m.Handles = make([]HandleInfo, numHandles)
		for i := range numHandles {
			h, err := ParseHandleInfo(le.Uint32(data[handleOff+4*i:]))
			if err != nil {
				return nil, err
			}
			m.Handles[i] = h
		}
	}

	var err error
	if m.Args, err = readStrings(data, le.Uint32(data[12:]), le.Uint32(data[16:])); err != nil {
		return nil, fmt.Errorf("args: %w", err)
	}
	if m.Environ, err = readStrings(data, le.Uint32(data[20:]), le.Uint32(data[24:])); err != nil {
		return nil, fmt.Errorf("environ: %w", err)
	}
	return m, nil
}

func stringsSize(ss []string) int {
	n := 0
	for _, s := range ss {
		n += len(s) + 1
	}
	return n
}

func putStrings(buf []byte, ss []string) {
	off := 0
	for _, s := range ss {
		off += copy(buf[off:], s)
		buf[off] = 0
		off++
	}
}

func readStrings(data []byte, off, num uint32) ([]string, error) {
	if num == 0 {
		return nil, nil
	}
	if off < HeaderSize || int(off) > len(data) {
		return nil, fmt.Errorf("%w: offset %d out of bounds", ErrMalformed, off)
	}
	if int(num) > len(data)-int(off) {
		return nil, fmt.Errorf("%w: %d strings cannot fit", ErrMalformed, num)
	}
	rest := data[off:]
	out := make([]string, 0, num)
	for range num {
		end := bytes.IndexByte(rest, 0)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated string", ErrMalformed)
		}
		out = append(out, string(rest[:end]))
		rest = rest[end+1:]
	}
	return out, nil
}
