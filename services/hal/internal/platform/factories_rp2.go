//go:build rp2040 || rp2350

package platform

import (
	"machine"

	"canhal-go/drivers/spidev"
	"canhal-go/errcode"
	"canhal-go/services/hal/internal/platform/boards"

	"tinygo.org/x/drivers"
)

// Default returns the RP2 factory: hardware SPI0/SPI1 with GPIO chip-select.
func Default() Factory { return rp2Factory{} }

type rp2Factory struct{}

func (rp2Factory) Instance(cfg SPIBusConfig) (int, bool) {
	return boards.RP2.SPIInstance(cfg.SCK, cfg.SDI, cfg.SDO)
}

func (rp2Factory) OpenSPI(inst int, cfg SPIBusConfig) (SPIBus, error) {
	var hw *machine.SPI
	switch inst {
	case 0:
		hw = machine.SPI0
	case 1:
		hw = machine.SPI1
	default:
		return nil, errcode.UnknownBus
	}
	hz := cfg.Hz
	if hz == 0 {
		hz = 1_000_000
	}
	err := hw.Configure(machine.SPIConfig{
		Frequency: hz,
		SCK:       machine.Pin(cfg.SCK),
		SDO:       machine.Pin(cfg.SDO),
		SDI:       machine.Pin(cfg.SDI),
		Mode:      cfg.Mode,
	})
	if err != nil {
		return nil, err
	}
	return &rp2Bus{hw: hw}, nil
}

type rp2Bus struct {
	hw *machine.SPI
}

func (b *rp2Bus) Device(cs int) (drivers.SPI, error) {
	if !boards.RP2.InGPIORange(cs) {
		return nil, errcode.UnknownPin
	}
	p := machine.Pin(cs)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return spidev.New(b.hw, p.Set), nil
}

func (b *rp2Bus) Close() error { return nil }
