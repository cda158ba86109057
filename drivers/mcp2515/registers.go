package mcp2515

// SPI instructions.
const (
	instrWrite      = 0x02
	instrRead       = 0x03
	instrBitModify  = 0x05
	instrReadStatus = 0xA0
	instrReset      = 0xC0
)

// Register is an MCP2515 register address.
type Register uint8

const (
	RXF0SIDH Register = 0x00
	RXF0SIDL Register = 0x01
	RXF0EID8 Register = 0x02
	RXF0EID0 Register = 0x03
	RXF1SIDH Register = 0x04
	RXF1SIDL Register = 0x05
	RXF1EID8 Register = 0x06
	RXF1EID0 Register = 0x07
	RXF2SIDH Register = 0x08
	RXF2SIDL Register = 0x09
	RXF2EID8 Register = 0x0A
	RXF2EID0 Register = 0x0B
	CANSTAT  Register = 0x0E
	CANCTRL  Register = 0x0F
	RXF3SIDH Register = 0x10
	RXF3SIDL Register = 0x11
	RXF3EID8 Register = 0x12
	RXF3EID0 Register = 0x13
	RXF4SIDH Register = 0x14
	RXF4SIDL Register = 0x15
	RXF4EID8 Register = 0x16
	RXF4EID0 Register = 0x17
	RXF5SIDH Register = 0x18
	RXF5SIDL Register = 0x19
	RXF5EID8 Register = 0x1A
	RXF5EID0 Register = 0x1B
	TEC      Register = 0x1C
	REC      Register = 0x1D
	RXM0SIDH Register = 0x20
	RXM0SIDL Register = 0x21
	RXM0EID8 Register = 0x22
	RXM0EID0 Register = 0x23
	RXM1SIDH Register = 0x24
	RXM1SIDL Register = 0x25
	RXM1EID8 Register = 0x26
	RXM1EID0 Register = 0x27
	CNF3     Register = 0x28
	CNF2     Register = 0x29
	CNF1     Register = 0x2A
	CANINTE  Register = 0x2B
	CANINTF  Register = 0x2C
	EFLG     Register = 0x2D
	TXB0CTRL Register = 0x30
	TXB0SIDH Register = 0x31
	TXB0SIDL Register = 0x32
	TXB0EID8 Register = 0x33
	TXB0EID0 Register = 0x34
	TXB0DLC  Register = 0x35
	TXB0DATA Register = 0x36
	TXB1CTRL Register = 0x40
	TXB1SIDH Register = 0x41
	TXB1SIDL Register = 0x42
	TXB1EID8 Register = 0x43
	TXB1EID0 Register = 0x44
	TXB1DLC  Register = 0x45
	TXB1DATA Register = 0x46
	TXB2CTRL Register = 0x50
	TXB2SIDH Register = 0x51
	TXB2SIDL Register = 0x52
	TXB2EID8 Register = 0x53
	TXB2EID0 Register = 0x54
	TXB2DLC  Register = 0x55
	TXB2DATA Register = 0x56
	RXB0CTRL Register = 0x60
	RXB0SIDH Register = 0x61
	RXB0SIDL Register = 0x62
	RXB0EID8 Register = 0x63
	RXB0EID0 Register = 0x64
	RXB0DLC  Register = 0x65
	RXB0DATA Register = 0x66
	RXB1CTRL Register = 0x70
	RXB1SIDH Register = 0x71
	RXB1SIDL Register = 0x72
	RXB1EID8 Register = 0x73
	RXB1EID0 Register = 0x74
	RXB1DLC  Register = 0x75
	RXB1DATA Register = 0x76
)

// CANCTRL / CANSTAT.
const (
	canctrlREQOP  = 0xE0
	canctrlABAT   = 0x10
	canctrlOSM    = 0x08
	canctrlCLKEN  = 0x04
	canctrlCLKPRE = 0x03

	canstatOPMOD = 0xE0
)

// CANINTE / CANINTF bits.
const (
	IntRX0IF = 0x01
	IntRX1IF = 0x02
	IntTX0IF = 0x04
	IntTX1IF = 0x08
	IntTX2IF = 0x10
	IntERRIF = 0x20
	IntWAKIF = 0x40
	IntMERRF = 0x80
)

// RXBnCTRL bits.
const (
	rxbRXMStd    = 0x20
	rxbRXMExt    = 0x40
	rxbRXMStdExt = 0x00
	rxbRXMMask   = 0x60
	rxbRTR       = 0x08

	rxb0BUKT       = 0x04
	rxb0FilhitMask = 0x03
	rxb1FilhitMask = 0x07
	rxb0Filhit     = 0x00
	rxb1Filhit     = 0x01
)

// TXBnCTRL bits.
const (
	txbABTF  = 0x40
	txbMLOA  = 0x20
	txbTXERR = 0x10
	txbTXREQ = 0x08
	txbTXIE  = 0x04
	txbTXP   = 0x03

	txbFailMask = txbABTF | txbMLOA | txbTXERR
)

// Offsets inside an id/dlc/data register block.
const (
	offSIDH = 0
	offSIDL = 1
	offEID8 = 2
	offEID0 = 3
	offDLC  = 4
	offDATA = 5

	sidlEXIDE = 0x08
	dlcMask   = 0x0F
	dlcRTR    = 0x40

	// Bytes cleared per transmit buffer on reset: CTRL through DATA7.
	txbRegionLen = 14
)

// READ STATUS response bits.
const (
	StatRX0IF = 0x01
	StatRX1IF = 0x02

	statRXIFMask = StatRX0IF | StatRX1IF
)

// ErrorFlags is the EFLG register.
type ErrorFlags uint8

const (
	EflgEWARN  ErrorFlags = 0x01
	EflgRXWAR  ErrorFlags = 0x02
	EflgTXWAR  ErrorFlags = 0x04
	EflgRXEP   ErrorFlags = 0x08
	EflgTXEP   ErrorFlags = 0x10
	EflgTXBO   ErrorFlags = 0x20
	EflgRX0OVR ErrorFlags = 0x40
	EflgRX1OVR ErrorFlags = 0x80
)

func (f ErrorFlags) Has(flag ErrorFlags) bool { return f&flag != 0 }

// txBuffer and rxBuffer describe one hardware message buffer.
type txBuffer struct {
	ctrl Register
	sidh Register
	data Register
}

type rxBuffer struct {
	ctrl Register
	sidh Register
	data Register
	intf uint8 // CANINTF pending bit
}

var txBuffers = [3]txBuffer{
	{TXB0CTRL, TXB0SIDH, TXB0DATA},
	{TXB1CTRL, TXB1SIDH, TXB1DATA},
	{TXB2CTRL, TXB2SIDH, TXB2DATA},
}

var rxBuffers = [2]rxBuffer{
	{RXB0CTRL, RXB0SIDH, RXB0DATA, IntRX0IF},
	{RXB1CTRL, RXB1SIDH, RXB1DATA, IntRX1IF},
}

// RXF selects one of the six acceptance filters.
type RXF uint8

const (
	RXF0 RXF = iota
	RXF1
	RXF2
	RXF3
	RXF4
	RXF5
)

var filterBase = [6]Register{RXF0SIDH, RXF1SIDH, RXF2SIDH, RXF3SIDH, RXF4SIDH, RXF5SIDH}

// Mask selects one of the two acceptance masks.
type Mask uint8

const (
	Mask0 Mask = iota
	Mask1
)

var maskBase = [2]Register{RXM0SIDH, RXM1SIDH}
