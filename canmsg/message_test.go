package canmsg

import (
	"testing"

	"github.com/brutella/can"
)

func TestNew_SetsDLCFromBytes(t *testing.T) {
	for n := 0; n <= MaxDataLen; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(0xA0 + i)
		}
		m := New(0x123, Standard, data...)
		if int(m.DLC()) != n {
			t.Fatalf("n=%d: dlc=%d", n, m.DLC())
		}
		for i := 0; i < MaxDataLen; i++ {
			want := byte(0)
			if i < n {
				want = byte(0xA0 + i)
			}
			if got := m.At(i); got != want {
				t.Fatalf("n=%d: byte %d = %#x, want %#x", n, i, got, want)
			}
		}
	}
}

func TestNew_TooManyBytesPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for 9 payload bytes")
		}
	}()
	_ = New(1, Standard, 1, 2, 3, 4, 5, 6, 7, 8, 9)
}

func TestAt_BoundIsCapacityNotDLC(t *testing.T) {
	m := New(1, Standard, 0x11)
	m.Set(7, 0x77)
	if m.At(7) != 0x77 {
		t.Fatalf("byte 7 = %#x", m.At(7))
	}
	if m.DLC() != 1 {
		t.Fatalf("Set must not change dlc, got %d", m.DLC())
	}
}

func TestAt_OutOfRangePanics(t *testing.T) {
	cases := []struct {
		name string
		fn   func(m *Message)
	}{
		{"at8", func(m *Message) { _ = m.At(8) }},
		{"set8", func(m *Message) { m.Set(8, 0) }},
		{"atNeg", func(m *Message) { _ = m.At(-1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			var m Message
			tc.fn(&m)
		})
	}
}

func TestSetters_AreIndependent(t *testing.T) {
	var m Message
	m.SetID(0x1ABCDEF0)
	m.SetExtended(true)
	m.SetRTR(true)
	m.SetDLC(9)

	if m.ID() != 0x1ABCDEF0 || !m.Extended() || !m.RTR() || m.DLC() != 9 {
		t.Fatalf("unexpected fields: %+v", m)
	}
	if m.Kind() != Extended {
		t.Fatalf("kind = %v", m.Kind())
	}
	if m.Valid() {
		t.Fatal("dlc 9 must not be valid")
	}
	if len(m.Payload()) != MaxDataLen {
		t.Fatalf("payload must be clipped to capacity, got %d", len(m.Payload()))
	}
}

func TestFrameConversion(t *testing.T) {
	ext := New(0x18FF50E5, Extended, 1, 2, 3)
	f := ext.ToFrame()
	if f.ID != 0x18FF50E5|FlagEFF || f.Length != 3 || f.Data[2] != 3 {
		t.Fatalf("extended frame: %+v", f)
	}
	if back := FromFrame(f); back != ext {
		t.Fatalf("round trip: %+v != %+v", back, ext)
	}

	var rtr Message
	rtr.SetID(0x7FF)
	rtr.SetRTR(true)
	f = rtr.ToFrame()
	if f.ID != 0x7FF|FlagRTR || f.Length != 0 {
		t.Fatalf("rtr frame: %+v", f)
	}

	got := FromFrame(can.Frame{ID: 0xFFFF, Length: 12})
	if got.ID() != 0x7FF || got.DLC() != MaxDataLen || got.Extended() {
		t.Fatalf("standard id must be masked and length clipped: %+v", got)
	}
}
