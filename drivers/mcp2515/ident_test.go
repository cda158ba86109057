package mcp2515

import "testing"

func TestPackID_StandardRoundTrip(t *testing.T) {
	var b [4]byte
	for id := uint32(0); id <= 0x7FF; id++ {
		packID(b[:], false, id)
		if b[offSIDL]&sidlEXIDE != 0 {
			t.Fatalf("id %#x: EXIDE set for standard id", id)
		}
		if b[offEID8] != 0 || b[offEID0] != 0 {
			t.Fatalf("id %#x: EID bytes not zero: % x", id, b)
		}
		got, ext := unpackID(b[:])
		if got != id || ext {
			t.Fatalf("id %#x: got %#x ext=%v", id, got, ext)
		}
	}
}

func TestPackID_ExtendedRoundTrip(t *testing.T) {
	check := func(id uint32) {
		t.Helper()
		var b [4]byte
		packID(b[:], true, id)
		if b[offSIDL]&sidlEXIDE == 0 {
			t.Fatalf("id %#x: EXIDE not set", id)
		}
		got, ext := unpackID(b[:])
		if got != id || !ext {
			t.Fatalf("id %#x: got %#x ext=%v", id, got, ext)
		}
	}
	for bit := 0; bit < 29; bit++ {
		check(1 << bit)
		check(0x1FFFFFFF &^ (1 << bit))
	}
	for id := uint32(0); id <= 0x1FFFFFFF-0x1FFF; id += 0x1FFF {
		check(id)
	}
	check(0x1FFFFFFF)
	for id := uint32(0); id < 0x10000; id++ {
		check(id)
	}
}

func TestPackID_DatasheetLayout(t *testing.T) {
	var b [4]byte

	packID(b[:], false, 0x123)
	if want := [4]byte{0x24, 0x60, 0, 0}; b != want {
		t.Fatalf("standard 0x123: got % x want % x", b, want)
	}

	// id[28:21]=0xFF id[20:18]=0b111 id[17:16]=0b11 id[15:0]=0xBEEF
	packID(b[:], true, 0x1FFFBEEF)
	if want := [4]byte{0xFF, 0xEB, 0xBE, 0xEF}; b != want {
		t.Fatalf("extended 0x1FFFBEEF: got % x want % x", b, want)
	}

	packID(b[:], true, 0x12345678)
	// SIDH = 0x12345678>>21 = 0x91, id[20:18]=0b101, id[17:16]=0b00
	if want := [4]byte{0x91, 0xA8, 0x56, 0x78}; b != want {
		t.Fatalf("extended 0x12345678: got % x want % x", b, want)
	}
}
