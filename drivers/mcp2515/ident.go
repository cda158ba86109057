package mcp2515

// packID writes id into the 4-byte SIDH/SIDL/EID8/EID0 layout shared by the
// filter, mask and transmit buffer registers.
//
// Standard: SIDH = id[10:3], SIDL[7:5] = id[2:0], EID bytes zero.
// Extended: SIDH = id[28:21], SIDL[7:5] = id[20:18], SIDL.EXIDE = 1,
// SIDL[1:0] = id[17:16], EID8 = id[15:8], EID0 = id[7:0].
func packID(b []byte, ext bool, id uint32) {
	if ext {
		b[offEID0] = byte(id)
		b[offEID8] = byte(id >> 8)
		hi := uint16(id >> 16)
		b[offSIDL] = byte(hi&0x03) | byte((hi&0x1C)<<3) | sidlEXIDE
		b[offSIDH] = byte(hi >> 5)
		return
	}
	sid := uint16(id)
	b[offSIDH] = byte(sid >> 3)
	b[offSIDL] = byte((sid & 0x07) << 5)
	b[offEID8] = 0
	b[offEID0] = 0
}

// unpackID is the inverse of packID; the format is taken from SIDL.EXIDE.
func unpackID(b []byte) (id uint32, ext bool) {
	id = uint32(b[offSIDH])<<3 | uint32(b[offSIDL])>>5
	if b[offSIDL]&sidlEXIDE == 0 {
		return id, false
	}
	id = id<<2 | uint32(b[offSIDL]&0x03)
	id = id<<8 | uint32(b[offEID8])
	id = id<<8 | uint32(b[offEID0])
	return id, true
}
