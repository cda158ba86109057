package mcp2515

import (
	"errors"
	"time"

	"canhal-go/canmsg"
	"canhal-go/x/timex"
)

// simChip is a register-level MCP2515 model that answers the driver's SPI
// transactions. It implements drivers.SPI.
type simChip struct {
	regs [0x80]byte
	log  []simTxn

	modeStuck bool // CANSTAT ignores REQOP
	txFail    byte // TXBnCTRL bits raised when TXREQ is set
	failAfter int  // return errBus after this many transactions; 0 disables
	calls     int
}

type simTxn struct {
	op   byte
	addr Register
	w    []byte
}

var errBus = errors.New("sim: bus fault")

func newSim() *simChip {
	s := &simChip{}
	s.powerOn()
	return s
}

func (s *simChip) powerOn() {
	s.regs = [0x80]byte{}
	s.regs[CANSTAT] = byte(ModeConfig)
	s.regs[CANCTRL] = byte(ModeConfig) | 0x07
}

func newTestDevice(s *simChip, osc Oscillator, rate Bitrate) (*Device, *timex.Fake) {
	clk := &timex.Fake{T: time.Unix(0, 0), Step: time.Millisecond}
	return New(s, Config{Oscillator: osc, Bitrate: rate, Clock: clk}), clk
}

func (s *simChip) Transfer(b byte) (byte, error) { return 0, nil }

func (s *simChip) Tx(w, r []byte) error {
	s.calls++
	if s.failAfter > 0 && s.calls > s.failAfter {
		return errBus
	}
	t := simTxn{op: w[0], w: append([]byte(nil), w...)}
	if len(w) > 1 {
		t.addr = Register(w[1])
	}
	s.log = append(s.log, t)

	switch w[0] {
	case instrReset:
		s.powerOn()
	case instrRead:
		for i := 2; i < len(w); i++ {
			r[i] = s.regs[(int(w[1])+i-2)&0x7F]
		}
	case instrWrite:
		for i := 2; i < len(w); i++ {
			s.store(Register((int(w[1])+i-2)&0x7F), w[i])
		}
	case instrBitModify:
		a := Register(w[1])
		s.store(a, s.regs[a]&^w[2]|w[3]&w[2])
	case instrReadStatus:
		r[1] = s.status()
	}
	return nil
}

func (s *simChip) store(a Register, v byte) {
	switch a {
	case RXM0SIDL, RXM1SIDL:
		v &^= sidlEXIDE // unimplemented in the mask registers
	case CANSTAT:
		return
	case CANCTRL:
		if !s.modeStuck {
			s.regs[CANSTAT] = s.regs[CANSTAT]&^canstatOPMOD | v&canctrlREQOP
		}
	case TXB0CTRL, TXB1CTRL, TXB2CTRL:
		if v&txbTXREQ != 0 {
			v |= s.txFail
		}
	}
	s.regs[a] = v
}

func (s *simChip) status() byte {
	intf := s.regs[CANINTF]
	var st byte
	st |= intf & (IntRX0IF | IntRX1IF)
	if s.regs[TXB0CTRL]&txbTXREQ != 0 {
		st |= 0x04
	}
	if intf&IntTX0IF != 0 {
		st |= 0x08
	}
	if s.regs[TXB1CTRL]&txbTXREQ != 0 {
		st |= 0x10
	}
	if intf&IntTX1IF != 0 {
		st |= 0x20
	}
	if s.regs[TXB2CTRL]&txbTXREQ != 0 {
		st |= 0x40
	}
	if intf&IntTX2IF != 0 {
		st |= 0x80
	}
	return st
}

// deliver models the controller moving a transmitted frame from a TX buffer
// into a receive buffer, as in loopback mode.
func (s *simChip) deliver(from TXB, to RXB) {
	tb, rb := txBuffers[from], rxBuffers[to]
	copy(s.regs[rb.sidh:rb.sidh+offDATA+canmsg.MaxDataLen], s.regs[tb.sidh:tb.sidh+offDATA+canmsg.MaxDataLen])
	dlc := s.regs[tb.sidh+offDLC]
	s.regs[rb.ctrl] &^= rxbRTR
	if dlc&dlcRTR != 0 {
		s.regs[rb.ctrl] |= rxbRTR
	}
	s.regs[tb.ctrl] &^= txbTXREQ
	s.regs[CANINTF] |= rb.intf
}

// inject places a frame straight into a receive buffer.
func (s *simChip) inject(to RXB, m canmsg.Message) {
	rb := rxBuffers[to]
	packID(s.regs[rb.sidh:], m.Extended(), m.ID())
	s.regs[rb.sidh+offDLC] = m.DLC()
	copy(s.regs[rb.data:], m.Payload())
	s.regs[rb.ctrl] &^= rxbRTR
	if m.RTR() {
		s.regs[rb.ctrl] |= rxbRTR
	}
	s.regs[CANINTF] |= rb.intf
}

func (s *simChip) resetLog() { s.log = s.log[:0] }

// touched reports whether any transaction read or wrote a register in
// [lo, hi].
func (s *simChip) touched(lo, hi Register) bool {
	for _, t := range s.log {
		if t.op == instrReset || t.op == instrReadStatus {
			continue
		}
		n := 1
		if t.op == instrRead || t.op == instrWrite {
			n = len(t.w) - 2
		}
		if t.addr <= hi && int(t.addr)+n-1 >= int(lo) {
			return true
		}
	}
	return false
}

// writes reports whether a WRITE or BITMOD targeted reg.
func (s *simChip) writes(reg Register) bool {
	for _, t := range s.log {
		switch t.op {
		case instrWrite:
			if reg >= t.addr && int(reg) < int(t.addr)+len(t.w)-2 {
				return true
			}
		case instrBitModify:
			if t.addr == reg {
				return true
			}
		}
	}
	return false
}
