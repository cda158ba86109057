// Package spidev frames transactions on a shared SPI bus with a GPIO
// chip-select line, turning a bus into a per-device drivers.SPI.
package spidev

import "tinygo.org/x/drivers"

// PinOutput drives an output pin to level.
type PinOutput func(level bool)

// Device is one chip on a shared bus. Chip-select is active low.
type Device struct {
	bus drivers.SPI
	cs  PinOutput
}

// New deasserts cs and returns the device.
func New(bus drivers.SPI, cs PinOutput) *Device {
	cs(true)
	return &Device{bus: bus, cs: cs}
}

// Tx exchanges w and r with chip-select held low for the whole transfer.
// Chip-select is released even when the bus reports an error.
func (d *Device) Tx(w, r []byte) error {
	d.cs(false)
	err := d.bus.Tx(w, r)
	d.cs(true)
	return err
}

// Transfer exchanges a single byte as its own framed transaction.
func (d *Device) Transfer(b byte) (byte, error) {
	d.cs(false)
	v, err := d.bus.Transfer(b)
	d.cs(true)
	return v, err
}

var _ drivers.SPI = (*Device)(nil)
