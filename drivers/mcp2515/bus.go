package mcp2515

// SPI register primitives. Each call is exactly one chip-select framed
// transaction on the transport.

// maxBurst is the longest register run moved in one transaction:
// SIDH..DLC plus 8 data bytes, and the 14-byte TX buffer clear.
const maxBurst = txbRegionLen

func (d *Device) resetChip() error {
	d.tx[0] = instrReset
	return d.spi.Tx(d.tx[:1], nil)
}

func (d *Device) readRegister(reg Register) (byte, error) {
	d.tx[0] = instrRead
	d.tx[1] = byte(reg)
	d.tx[2] = 0
	if err := d.spi.Tx(d.tx[:3], d.rx[:3]); err != nil {
		return 0, err
	}
	return d.rx[2], nil
}

// readRegisters reads len(dst) consecutive registers starting at reg.
// The chip auto-increments the address.
func (d *Device) readRegisters(reg Register, dst []byte) error {
	n := len(dst)
	d.tx[0] = instrRead
	d.tx[1] = byte(reg)
	clear(d.tx[2 : 2+n])
	if err := d.spi.Tx(d.tx[:2+n], d.rx[:2+n]); err != nil {
		return err
	}
	copy(dst, d.rx[2:2+n])
	return nil
}

func (d *Device) writeRegister(reg Register, v byte) error {
	d.tx[0] = instrWrite
	d.tx[1] = byte(reg)
	d.tx[2] = v
	return d.spi.Tx(d.tx[:3], nil)
}

// writeRegisters writes src to consecutive registers starting at reg.
func (d *Device) writeRegisters(reg Register, src []byte) error {
	d.tx[0] = instrWrite
	d.tx[1] = byte(reg)
	n := copy(d.tx[2:], src)
	return d.spi.Tx(d.tx[:2+n], nil)
}

// modifyRegister sets the bits of reg selected by mask to the matching bits
// of data. Only bit-addressable registers honour the mask; for the others
// the chip writes data as a whole byte.
func (d *Device) modifyRegister(reg Register, mask, data byte) error {
	d.tx[0] = instrBitModify
	d.tx[1] = byte(reg)
	d.tx[2] = mask
	d.tx[3] = data
	return d.spi.Tx(d.tx[:4], nil)
}

func (d *Device) readStatus() (byte, error) {
	d.tx[0] = instrReadStatus
	d.tx[1] = 0
	if err := d.spi.Tx(d.tx[:2], d.rx[:2]); err != nil {
		return 0, err
	}
	return d.rx[1], nil
}
