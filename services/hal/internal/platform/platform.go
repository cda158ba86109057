// Package platform opens SPI hardware for the HAL registry. One factory is
// compiled per target: RP2 microcontrollers, Linux spidev, or none.
package platform

import "tinygo.org/x/drivers"

// SPIBusConfig names a bus and its wiring.
type SPIBusConfig struct {
	ID            string // "spi0", "spi1"
	SCK, SDI, SDO int    // GPIO numbers; ignored on Linux
	Hz            uint32
	Mode          uint8
}

// SPIBus is an opened controller that hands out per-chip transports.
type SPIBus interface {
	// Device returns a transport that frames each Tx with chip-select cs.
	Device(cs int) (drivers.SPI, error)
	Close() error
}

// Factory maps bus configs to hardware instances and opens them.
type Factory interface {
	Instance(cfg SPIBusConfig) (int, bool)
	OpenSPI(inst int, cfg SPIBusConfig) (SPIBus, error)
}
