//go:build !linux && !rp2040 && !rp2350

package platform

import "canhal-go/errcode"

// Default returns a factory that knows no buses. Tests inject fakes.
func Default() Factory { return noFactory{} }

type noFactory struct{}

func (noFactory) Instance(SPIBusConfig) (int, bool) { return 0, false }

func (noFactory) OpenSPI(int, SPIBusConfig) (SPIBus, error) {
	return nil, errcode.Unsupported
}
