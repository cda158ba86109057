//go:build linux && !rp2040 && !rp2350

package platform

import (
	"testing"
	"unsafe"

	"canhal-go/errcode"
)

func TestLinux_Instance(t *testing.T) {
	f := linuxFactory{dir: "/dev"}
	if i, ok := f.Instance(SPIBusConfig{ID: "spi1"}); !ok || i != 1 {
		t.Fatalf("spi1 = %d,%v", i, ok)
	}
	for _, id := range []string{"", "i2c0", "spi", "spix", "spi-1"} {
		if _, ok := f.Instance(SPIBusConfig{ID: id}); ok {
			t.Errorf("%q accepted", id)
		}
	}
}

func TestLinux_TransferLayout(t *testing.T) {
	if s := unsafe.Sizeof(spiIocTransfer{}); s != 32 {
		t.Fatalf("spi_ioc_transfer size = %d", s)
	}
}

func TestLinux_MissingDevice(t *testing.T) {
	f := linuxFactory{dir: t.TempDir()}
	b, err := f.OpenSPI(0, SPIBusConfig{ID: "spi0"})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, err := b.Device(0); errcode.Of(err) != errcode.UnknownBus {
		t.Fatalf("err = %v", err)
	}
}
