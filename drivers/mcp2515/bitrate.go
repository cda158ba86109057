package mcp2515

// Oscillator is the crystal frequency feeding the controller.
type Oscillator uint8

const (
	Osc16MHz Oscillator = iota
	Osc12MHz
	Osc10MHz
	Osc8MHz

	numOscillators
)

func (o Oscillator) String() string {
	switch o {
	case Osc16MHz:
		return "16MHz"
	case Osc12MHz:
		return "12MHz"
	case Osc10MHz:
		return "10MHz"
	case Osc8MHz:
		return "8MHz"
	default:
		return "unknown"
	}
}

// Bitrate is the nominal CAN bus speed.
type Bitrate uint8

const (
	CAN10kbps Bitrate = iota
	CAN20kbps
	CAN50kbps
	CAN100kbps
	CAN125kbps
	CAN250kbps
	CAN500kbps
	CAN800kbps
	CAN1000kbps

	numBitrates
)

var bitrateKbps = [numBitrates]uint16{10, 20, 50, 100, 125, 250, 500, 800, 1000}

// Kbps returns the nominal rate in kbit/s, or 0 for an unknown value.
func (b Bitrate) Kbps() uint16 {
	if b >= numBitrates {
		return 0
	}
	return bitrateKbps[b]
}

// BitrateFromKbps maps a rate in kbit/s to a Bitrate.
func BitrateFromKbps(kbps int) (Bitrate, bool) {
	for i, v := range bitrateKbps {
		if int(v) == kbps {
			return Bitrate(i), true
		}
	}
	return 0, false
}

// OscillatorFromMHz maps a crystal frequency in MHz to an Oscillator.
func OscillatorFromMHz(mhz int) (Oscillator, bool) {
	switch mhz {
	case 16:
		return Osc16MHz, true
	case 12:
		return Osc12MHz, true
	case 10:
		return Osc10MHz, true
	case 8:
		return Osc8MHz, true
	}
	return 0, false
}

// bitTiming holds CNF1..CNF3. ok distinguishes a populated cell from the
// zero value of a missing one.
type bitTiming struct {
	cnf1, cnf2, cnf3 byte
	ok               bool
}

// Empirical CNF tables per oscillator. 800 kbps cannot be represented with a
// 10 or 12 MHz crystal and is left unpopulated.
var bitTimings = [numOscillators][numBitrates]bitTiming{
	Osc16MHz: {
		CAN10kbps:   {0x31, 0xB5, 0x01, true},
		CAN20kbps:   {0x18, 0xB5, 0x01, true},
		CAN50kbps:   {0x09, 0xB5, 0x01, true},
		CAN100kbps:  {0x04, 0xB5, 0x01, true},
		CAN125kbps:  {0x03, 0xF0, 0x86, true},
		CAN250kbps:  {0x41, 0xF1, 0x85, true},
		CAN500kbps:  {0x00, 0xF0, 0x86, true},
		CAN800kbps:  {0x00, 0x9A, 0x01, true},
		CAN1000kbps: {0x00, 0xD0, 0x82, true},
	},
	Osc12MHz: {
		CAN10kbps:   {0x27, 0xAD, 0x01, true},
		CAN20kbps:   {0x13, 0xAD, 0x01, true},
		CAN50kbps:   {0x07, 0xAD, 0x01, true},
		CAN100kbps:  {0x03, 0xAD, 0x01, true},
		CAN125kbps:  {0x02, 0xB5, 0x01, true},
		CAN250kbps:  {0x01, 0xA3, 0x01, true},
		CAN500kbps:  {0x00, 0xA3, 0x01, true},
		CAN1000kbps: {0x00, 0x88, 0x01, true},
	},
	Osc10MHz: {
		CAN10kbps:   {0x18, 0xBF, 0x02, true},
		CAN20kbps:   {0x18, 0x9A, 0x01, true},
		CAN50kbps:   {0x04, 0xBF, 0x02, true},
		CAN100kbps:  {0x04, 0x9A, 0x01, true},
		CAN125kbps:  {0x01, 0xB6, 0x04, true},
		CAN250kbps:  {0x00, 0xB6, 0x04, true},
		CAN500kbps:  {0x00, 0x9A, 0x01, true},
		CAN1000kbps: {0x00, 0x80, 0x01, true},
	},
	Osc8MHz: {
		CAN10kbps:   {0x18, 0xB5, 0x01, true},
		CAN20kbps:   {0x09, 0xBF, 0x02, true},
		CAN50kbps:   {0x04, 0xB5, 0x01, true},
		CAN100kbps:  {0x01, 0xBF, 0x02, true},
		CAN125kbps:  {0x01, 0xB1, 0x05, true},
		CAN250kbps:  {0x00, 0xB1, 0x05, true},
		CAN500kbps:  {0x00, 0x90, 0x02, true},
		CAN800kbps:  {0x00, 0x80, 0x01, true},
		CAN1000kbps: {0x00, 0x80, 0x00, true},
	},
}

// BitTiming returns the CNF1, CNF2 and CNF3 values for a crystal/bitrate
// pair. ok is false for combinations the chip cannot produce.
func BitTiming(osc Oscillator, rate Bitrate) (cnf1, cnf2, cnf3 byte, ok bool) {
	if osc >= numOscillators || rate >= numBitrates {
		return 0, 0, 0, false
	}
	t := bitTimings[osc][rate]
	return t.cnf1, t.cnf2, t.cnf3, t.ok
}
