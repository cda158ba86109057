package mcp2515

import (
	"errors"
	"testing"
)

func TestBitTiming_AbsentCells(t *testing.T) {
	for osc := Oscillator(0); osc < numOscillators; osc++ {
		for rate := Bitrate(0); rate < numBitrates; rate++ {
			_, _, _, ok := BitTiming(osc, rate)
			wantAbsent := rate == CAN800kbps && (osc == Osc10MHz || osc == Osc12MHz)
			if ok == wantAbsent {
				t.Errorf("%v/%dkbps: ok=%v", osc, rate.Kbps(), ok)
			}
		}
	}
	if _, _, _, ok := BitTiming(numOscillators, CAN125kbps); ok {
		t.Error("out-of-range oscillator reported ok")
	}
	if _, _, _, ok := BitTiming(Osc16MHz, numBitrates); ok {
		t.Error("out-of-range bitrate reported ok")
	}
}

func TestBitTiming_Values(t *testing.T) {
	cases := []struct {
		osc        Oscillator
		rate       Bitrate
		c1, c2, c3 byte
	}{
		{Osc16MHz, CAN500kbps, 0x00, 0xF0, 0x86},
		{Osc16MHz, CAN250kbps, 0x41, 0xF1, 0x85},
		{Osc16MHz, CAN1000kbps, 0x00, 0xD0, 0x82},
		{Osc12MHz, CAN125kbps, 0x02, 0xB5, 0x01},
		{Osc10MHz, CAN250kbps, 0x00, 0xB6, 0x04},
		{Osc8MHz, CAN800kbps, 0x00, 0x80, 0x01},
		{Osc8MHz, CAN1000kbps, 0x00, 0x80, 0x00},
	}
	for _, c := range cases {
		c1, c2, c3, ok := BitTiming(c.osc, c.rate)
		if !ok || c1 != c.c1 || c2 != c.c2 || c3 != c.c3 {
			t.Errorf("%v/%dkbps: got %02x %02x %02x ok=%v", c.osc, c.rate.Kbps(), c1, c2, c3, ok)
		}
	}
}

func TestBitrateFromKbps(t *testing.T) {
	for i, k := range bitrateKbps {
		b, ok := BitrateFromKbps(int(k))
		if !ok || b != Bitrate(i) {
			t.Errorf("%d kbps: got %v ok=%v", k, b, ok)
		}
	}
	if _, ok := BitrateFromKbps(33); ok {
		t.Error("33 kbps accepted")
	}
	if _, ok := OscillatorFromMHz(20); ok {
		t.Error("20 MHz accepted")
	}
}

func TestSetBitrate_UnsupportedLeavesCNFUntouched(t *testing.T) {
	s := newSim()
	d, _ := newTestDevice(s, Osc10MHz, CAN500kbps)

	err := d.SetBitrate(CAN800kbps)
	if !errors.Is(err, ErrFail) || !errors.Is(err, ErrUnsupportedBitrate) {
		t.Fatalf("err = %v", err)
	}
	for _, r := range []Register{CNF1, CNF2, CNF3} {
		if s.writes(r) {
			t.Errorf("register %#x written", r)
		}
	}
	if d.Bitrate() != CAN500kbps {
		t.Errorf("bitrate changed to %v", d.Bitrate())
	}
}

func TestSetBitrate_ProgramsCNF(t *testing.T) {
	s := newSim()
	d, _ := newTestDevice(s, Osc16MHz, CAN500kbps)

	if err := d.SetBitrate(CAN125kbps); err != nil {
		t.Fatal(err)
	}
	if s.regs[CNF1] != 0x03 || s.regs[CNF2] != 0xF0 || s.regs[CNF3] != 0x86 {
		t.Fatalf("CNF = %02x %02x %02x", s.regs[CNF1], s.regs[CNF2], s.regs[CNF3])
	}
	if Mode(s.regs[CANSTAT]&canstatOPMOD) != ModeConfig {
		t.Fatal("chip not left in config mode")
	}
	if d.Bitrate() != CAN125kbps {
		t.Fatalf("bitrate = %v", d.Bitrate())
	}
}
