// Package canmsg holds the in-memory representation of a single classic CAN
// frame. It has no transport dependency; drivers translate it to and from
// their own register or wire layouts.
package canmsg

// MaxDataLen is the payload capacity of a classic CAN frame.
const MaxDataLen = 8

// Frame selects the identifier format.
type Frame uint8

const (
	Standard Frame = iota // 11-bit identifier
	Extended              // 29-bit identifier
)

func (f Frame) String() string {
	if f == Extended {
		return "extended"
	}
	return "standard"
}

// Message is one CAN frame. The zero value is a standard data frame with id 0
// and no payload. Bytes beyond the DLC are kept zeroed by the constructors but
// carry no meaning.
type Message struct {
	id       uint32
	dlc      uint8
	extended bool
	rtr      bool
	data     [MaxDataLen]byte
}

// New builds a message with the given payload bytes. The DLC is the number of
// bytes supplied. Passing more than MaxDataLen bytes panics.
func New(id uint32, kind Frame, data ...byte) Message {
	if len(data) > MaxDataLen {
		panic("canmsg: payload longer than 8 bytes")
	}
	m := Message{
		id:       id,
		dlc:      uint8(len(data)),
		extended: kind == Extended,
	}
	copy(m.data[:], data)
	return m
}

func (m *Message) ID() uint32      { return m.id }
func (m *Message) SetID(id uint32) { m.id = id }

// DLC returns the data length code as stored. It may exceed MaxDataLen if a
// caller set it so; see Valid.
func (m *Message) DLC() uint8 { return m.dlc }

// SetDLC stores n as given. Values above MaxDataLen are not clamped; drivers
// reject such messages before touching hardware.
func (m *Message) SetDLC(n uint8) { m.dlc = n }

func (m *Message) Extended() bool     { return m.extended }
func (m *Message) SetExtended(v bool) { m.extended = v }
func (m *Message) RTR() bool          { return m.rtr }
func (m *Message) SetRTR(v bool)      { m.rtr = v }

// Kind returns the identifier format.
func (m *Message) Kind() Frame {
	if m.extended {
		return Extended
	}
	return Standard
}

// SetKind sets the identifier format.
func (m *Message) SetKind(k Frame) { m.extended = k == Extended }

// Valid reports whether the DLC fits the payload capacity.
func (m *Message) Valid() bool { return m.dlc <= MaxDataLen }

// At returns byte i of the 8-byte buffer. The bound is the buffer capacity,
// not the DLC. i >= MaxDataLen panics.
func (m *Message) At(i int) byte {
	if i < 0 || i >= MaxDataLen {
		panic("canmsg: data index out of range")
	}
	return m.data[i]
}

// Set writes byte i of the 8-byte buffer. i >= MaxDataLen panics.
func (m *Message) Set(i int, b byte) {
	if i < 0 || i >= MaxDataLen {
		panic("canmsg: data index out of range")
	}
	m.data[i] = b
}

// Payload returns the meaningful bytes (the first DLC bytes, at most 8).
// The slice aliases the message buffer.
func (m *Message) Payload() []byte {
	n := int(m.dlc)
	if n > MaxDataLen {
		n = MaxDataLen
	}
	return m.data[:n]
}

// Buffer exposes the whole 8-byte buffer for drivers that fill it in place.
func (m *Message) Buffer() *[MaxDataLen]byte { return &m.data }
