// Package conv holds allocation-free number formatting for code that also
// builds under TinyGo.
package conv

const hexd = "0123456789ABCDEF"

// Hex writes the low digits hex digits of n, uppercase and zero-padded,
// into the tail of buf and returns the used slice. It returns an empty
// slice when buf is too short.
func Hex(buf []byte, n uint32, digits int) []byte {
	if digits <= 0 || digits > 8 || len(buf) < digits {
		return buf[:0]
	}
	i := len(buf)
	for j := 0; j < digits; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	return buf[i:]
}

// U32Hex writes 8-digit uppercase hex without 0x, zero-padded.
func U32Hex(buf []byte, n uint32) []byte { return Hex(buf, n, 8) }

// IDHex formats a CAN identifier: 3 digits for a standard id, 8 for an
// extended one.
func IDHex(buf []byte, id uint32, ext bool) []byte {
	if ext {
		return Hex(buf, id&0x1FFFFFFF, 8)
	}
	return Hex(buf, id&0x7FF, 3)
}
