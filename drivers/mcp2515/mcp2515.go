// Package mcp2515 provides a TinyGo driver for the Microchip MCP2515
// stand-alone CAN controller.
//
// Design notes (datasheet references):
// • SPI mode 0,0, up to 10 MHz; chip-select is handled by the transport.
// • Every register access is a single live transaction; the driver caches
//   nothing from the chip.
// • Mode changes are confirmed by polling CANSTAT.OPMOD for at most 10 ms.
// • Filters, masks and bit timing are only writable in Configuration mode,
//   which the setters enter themselves.
// • No internal locking or retries. Callers serialise access and own backoff.
package mcp2515

import (
	"time"

	"canhal-go/canmsg"
	"canhal-go/x/timex"

	"tinygo.org/x/drivers"
)

// Mode is the REQOP/OPMOD operating mode field.
type Mode uint8

const (
	ModeNormal     Mode = 0x00
	ModeSleep      Mode = 0x20
	ModeLoopback   Mode = 0x40
	ModeListenOnly Mode = 0x60
	ModeConfig     Mode = 0x80
	ModePowerup    Mode = 0xE0
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeSleep:
		return "sleep"
	case ModeLoopback:
		return "loopback"
	case ModeListenOnly:
		return "listenonly"
	case ModeConfig:
		return "config"
	case ModePowerup:
		return "powerup"
	default:
		return "unknown"
	}
}

// ParseMode maps a mode name as returned by String back to a Mode.
func ParseMode(s string) (Mode, bool) {
	for _, m := range [...]Mode{ModeNormal, ModeSleep, ModeLoopback, ModeListenOnly, ModeConfig} {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// TXB and RXB name the hardware message buffers.
type TXB uint8

const (
	TXB0 TXB = iota
	TXB1
	TXB2
)

type RXB uint8

const (
	RXB0 RXB = iota
	RXB1
)

const (
	resetSettle = 10 * time.Millisecond
	modeTimeout = 10 * time.Millisecond
)

// Config selects the crystal and the bitrate applied by Reset.
type Config struct {
	Oscillator Oscillator
	Bitrate    Bitrate
	Clock      timex.Clock // nil: timex.System
}

// DefaultConfig is a 16 MHz crystal at 500 kbit/s.
func DefaultConfig() Config {
	return Config{Oscillator: Osc16MHz, Bitrate: CAN500kbps}
}

type Device struct {
	spi     drivers.SPI
	osc     Oscillator
	bitrate Bitrate
	clock   timex.Clock

	// Fixed buffers to avoid per-call heap allocations.
	tx  [2 + maxBurst]byte
	rx  [2 + maxBurst]byte
	blk [offDATA + canmsg.MaxDataLen]byte
}

// New binds a driver to spi. The chip is not touched until Reset.
func New(spi drivers.SPI, cfg Config) *Device {
	clk := cfg.Clock
	if clk == nil {
		clk = timex.System
	}
	return &Device{spi: spi, osc: cfg.Oscillator, bitrate: cfg.Bitrate, clock: clk}
}

func (d *Device) Oscillator() Oscillator { return d.osc }
func (d *Device) Bitrate() Bitrate       { return d.bitrate }

// Reset brings the chip from an unknown state to Normal mode with every
// filter open and the configured bit timing applied.
func (d *Device) Reset() error {
	if err := d.resetChip(); err != nil {
		return err
	}
	d.clock.Sleep(resetSettle)

	var zeros [txbRegionLen]byte
	for _, b := range txBuffers {
		if err := d.writeRegisters(b.ctrl, zeros[:]); err != nil {
			return err
		}
	}
	if err := d.writeRegister(RXB0CTRL, 0); err != nil {
		return err
	}
	if err := d.writeRegister(RXB1CTRL, 0); err != nil {
		return err
	}
	if err := d.writeRegister(CANINTE, IntRX0IF|IntRX1IF|IntERRIF|IntMERRF); err != nil {
		return err
	}

	// Accept standard and extended frames; RXB0 rolls over into RXB1.
	if err := d.modifyRegister(RXB0CTRL,
		rxbRXMMask|rxb0BUKT|rxb0FilhitMask,
		rxbRXMStdExt|rxb0BUKT|rxb0Filhit); err != nil {
		return err
	}
	if err := d.modifyRegister(RXB1CTRL,
		rxbRXMMask|rxb1FilhitMask,
		rxbRXMStdExt|rxb1Filhit); err != nil {
		return err
	}

	// Filters apply per frame kind; RXF1 is the extended filter for RXB0.
	for i := RXF0; i <= RXF5; i++ {
		if err := d.SetFilter(i, i == RXF1, 0); err != nil {
			return err
		}
	}
	for _, m := range [...]Mask{Mask0, Mask1} {
		if err := d.SetFilterMask(m, true, 0); err != nil {
			return err
		}
	}

	if err := d.SetBitrate(d.bitrate); err != nil {
		return err
	}
	return d.SetMode(ModeNormal)
}

// SetMode requests mode and waits up to 10 ms for CANSTAT to confirm it.
func (d *Device) SetMode(mode Mode) error {
	if err := d.modifyRegister(CANCTRL, canctrlREQOP, byte(mode)); err != nil {
		return err
	}
	start := d.clock.Now()
	for {
		v, err := d.readRegister(CANSTAT)
		if err != nil {
			return err
		}
		if Mode(v&canstatOPMOD) == mode {
			return nil
		}
		if timex.Deadline(d.clock, start, modeTimeout) {
			return ErrModeTimeout
		}
	}
}

// Mode reads back the current operating mode.
func (d *Device) Mode() (Mode, error) {
	v, err := d.readRegister(CANSTAT)
	return Mode(v & canstatOPMOD), err
}

// SetBitrate enters Configuration mode and programs CNF1..CNF3. The chip
// stays in Configuration mode. On success rate is also used by later Resets.
func (d *Device) SetBitrate(rate Bitrate) error {
	if err := d.SetMode(ModeConfig); err != nil {
		return err
	}
	cnf1, cnf2, cnf3, ok := BitTiming(d.osc, rate)
	if !ok {
		return ErrUnsupportedBitrate
	}
	if err := d.writeRegister(CNF1, cnf1); err != nil {
		return err
	}
	if err := d.writeRegister(CNF2, cnf2); err != nil {
		return err
	}
	if err := d.writeRegister(CNF3, cnf3); err != nil {
		return err
	}
	d.bitrate = rate
	return nil
}

// SetFilter programs acceptance filter f. The chip is left in
// Configuration mode.
func (d *Device) SetFilter(f RXF, ext bool, bits uint32) error {
	if int(f) >= len(filterBase) {
		return ErrUnknownFilter
	}
	return d.writeID(filterBase[f], ext, bits)
}

// SetFilterMask programs acceptance mask m. The chip is left in
// Configuration mode.
func (d *Device) SetFilterMask(m Mask, ext bool, bits uint32) error {
	if int(m) >= len(maskBase) {
		return ErrUnknownFilter
	}
	return d.writeID(maskBase[m], ext, bits)
}

func (d *Device) writeID(reg Register, ext bool, bits uint32) error {
	if err := d.SetMode(ModeConfig); err != nil {
		return err
	}
	packID(d.blk[:4], ext, bits)
	return d.writeRegisters(reg, d.blk[:4])
}

// SendMessage loads msg into the first free transmit buffer, scanning TXB0
// to TXB2, and requests transmission. It returns ErrAllTxBusy when every
// buffer still has TXREQ set. A nil result only means the chip accepted the
// request; arbitration may still be lost later.
func (d *Device) SendMessage(msg *canmsg.Message) error {
	if err := checkTx(msg); err != nil {
		return err
	}
	for i, b := range txBuffers {
		ctrl, err := d.readRegister(b.ctrl)
		if err != nil {
			return err
		}
		if ctrl&txbTXREQ == 0 {
			return d.SendMessageTo(TXB(i), msg)
		}
	}
	return ErrAllTxBusy
}

// SendMessageTo loads msg into buffer n without checking whether it is
// free.
func (d *Device) SendMessageTo(n TXB, msg *canmsg.Message) error {
	if err := checkTx(msg); err != nil {
		return err
	}
	if int(n) >= len(txBuffers) {
		return ErrFail
	}
	b := txBuffers[n]
	dlc := msg.DLC()

	packID(d.blk[:], msg.Extended(), msg.ID())
	d.blk[offDLC] = dlc
	if msg.RTR() {
		d.blk[offDLC] |= dlcRTR
	}
	copy(d.blk[offDATA:], msg.Payload())
	if err := d.writeRegisters(b.sidh, d.blk[:offDATA+int(dlc)]); err != nil {
		return err
	}

	if err := d.modifyRegister(b.ctrl, txbTXREQ, txbTXREQ); err != nil {
		return err
	}
	ctrl, err := d.readRegister(b.ctrl)
	if err != nil {
		return err
	}
	if ctrl&txbFailMask != 0 {
		return ErrTxAborted
	}
	return nil
}

// checkTx rejects frames the transmit registers cannot represent.
func checkTx(msg *canmsg.Message) error {
	if msg.DLC() > canmsg.MaxDataLen {
		return ErrPayloadTooLong
	}
	lim := canmsg.MaskSFF
	if msg.Extended() {
		lim = canmsg.MaskEFF
	}
	if msg.ID() > lim {
		return ErrIDTooWide
	}
	return nil
}

// ReadMessage decodes one pending frame into msg, RXB0 first. It returns
// ErrNoMsg when neither buffer holds a frame. Only one buffer is drained per
// call.
func (d *Device) ReadMessage(msg *canmsg.Message) error {
	st, err := d.readStatus()
	if err != nil {
		return err
	}
	switch {
	case st&StatRX0IF != 0:
		return d.ReadMessageFrom(RXB0, msg)
	case st&StatRX1IF != 0:
		return d.ReadMessageFrom(RXB1, msg)
	default:
		return ErrNoMsg
	}
}

// ReadMessageFrom decodes buffer n into msg and releases the buffer. It does
// not check the pending flag.
func (d *Device) ReadMessageFrom(n RXB, msg *canmsg.Message) error {
	if int(n) >= len(rxBuffers) {
		return ErrFail
	}
	b := rxBuffers[n]

	hdr := d.blk[:offDATA]
	if err := d.readRegisters(b.sidh, hdr); err != nil {
		return err
	}
	id, ext := unpackID(hdr)
	dlc := hdr[offDLC] & dlcMask
	if dlc > canmsg.MaxDataLen {
		return ErrBadDLC
	}

	ctrl, err := d.readRegister(b.ctrl)
	if err != nil {
		return err
	}

	*msg = canmsg.Message{}
	msg.SetID(id)
	msg.SetExtended(ext)
	msg.SetRTR(ctrl&rxbRTR != 0)
	msg.SetDLC(dlc)
	if err := d.readRegisters(b.data, msg.Buffer()[:dlc]); err != nil {
		return err
	}

	return d.modifyRegister(CANINTF, b.intf, 0)
}

// Status returns the READ STATUS byte.
func (d *Device) Status() (byte, error) { return d.readStatus() }

// CheckReceive reports whether either receive buffer holds a frame.
func (d *Device) CheckReceive() (bool, error) {
	st, err := d.readStatus()
	if err != nil {
		return false, err
	}
	return st&statRXIFMask != 0, nil
}

// ErrorFlags reads EFLG.
func (d *Device) ErrorFlags() (ErrorFlags, error) {
	v, err := d.readRegister(EFLG)
	return ErrorFlags(v), err
}

// ErrorCounters reads the transmit and receive error counters.
func (d *Device) ErrorCounters() (tec, rec uint8, err error) {
	var b [2]byte
	if err = d.readRegisters(TEC, b[:]); err != nil {
		return 0, 0, err
	}
	return b[0], b[1], nil
}

// InterruptFlags reads CANINTF.
func (d *Device) InterruptFlags() (byte, error) {
	return d.readRegister(CANINTF)
}

// ClearInterrupts clears the CANINTF bits in mask.
func (d *Device) ClearInterrupts(mask byte) error {
	return d.modifyRegister(CANINTF, mask, 0)
}

// ClearOverflow clears the RX0OVR and RX1OVR bits in EFLG.
func (d *Device) ClearOverflow() error {
	return d.modifyRegister(EFLG, byte(EflgRX0OVR|EflgRX1OVR), 0)
}
