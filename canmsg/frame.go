package canmsg

import "github.com/brutella/can"

// SocketCAN id word flags, as carried in can.Frame.ID.
const (
	FlagEFF uint32 = 0x80000000
	FlagRTR uint32 = 0x40000000
	FlagERR uint32 = 0x20000000

	MaskSFF uint32 = 0x000007FF
	MaskEFF uint32 = 0x1FFFFFFF
)

// ToFrame converts m to a brutella frame. The identifier is masked to the
// width of its format and the EFF/RTR flags are folded into the id word.
func (m Message) ToFrame() can.Frame {
	var f can.Frame
	if m.extended {
		f.ID = (m.id & MaskEFF) | FlagEFF
	} else {
		f.ID = m.id & MaskSFF
	}
	if m.rtr {
		f.ID |= FlagRTR
	}
	f.Length = m.dlc
	if f.Length > MaxDataLen {
		f.Length = MaxDataLen
	}
	copy(f.Data[:], m.data[:f.Length])
	return f
}

// FromFrame builds a message from a brutella frame. Error frames are not
// distinguished; the ERR flag is dropped.
func FromFrame(f can.Frame) Message {
	var m Message
	if f.ID&FlagEFF != 0 {
		m.extended = true
		m.id = f.ID & MaskEFF
	} else {
		m.id = f.ID & MaskSFF
	}
	m.rtr = f.ID&FlagRTR != 0
	m.dlc = f.Length
	if m.dlc > MaxDataLen {
		m.dlc = MaxDataLen
	}
	copy(m.data[:], f.Data[:m.dlc])
	return m
}
