package boards

// Board describes what the SoC can do: GPIO range and which pin triples
// route to which SPI controller. It carries no wiring choices.
type Board struct {
	Name             string
	GPIOMin, GPIOMax int

	SPI []SPIRoute
}

// SPIRoute is one legal SCK/SDI/SDO pin triple for a controller instance.
type SPIRoute struct {
	SCK, SDI, SDO int
	Instance      int
}

// RP2 covers the Raspberry Pi Pico and Pico 2 user GPIOs.
var RP2 = Board{
	Name:    "rp2",
	GPIOMin: 0,
	GPIOMax: 28,
	SPI: []SPIRoute{
		{SCK: 2, SDI: 0, SDO: 3, Instance: 0},
		{SCK: 6, SDI: 4, SDO: 7, Instance: 0},
		{SCK: 10, SDI: 8, SDO: 11, Instance: 1},
		{SCK: 14, SDI: 12, SDO: 15, Instance: 1},
		{SCK: 18, SDI: 16, SDO: 19, Instance: 0},
	},
}

// SPIInstance returns the controller a pin triple is wired to.
func (b *Board) SPIInstance(sck, sdi, sdo int) (int, bool) {
	for _, r := range b.SPI {
		if r.SCK == sck && r.SDI == sdi && r.SDO == sdo {
			return r.Instance, true
		}
	}
	return 0, false
}

func (b *Board) InGPIORange(n int) bool { return n >= b.GPIOMin && n <= b.GPIOMax }
