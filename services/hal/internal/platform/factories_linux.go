//go:build linux && !rp2040 && !rp2350

package platform

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"canhal-go/errcode"

	"golang.org/x/sys/unix"
	"tinygo.org/x/drivers"
)

// Default returns the Linux factory. Buses are "spiN" and devices map to
// /dev/spidevN.CS with kernel-driven chip-select.
func Default() Factory { return linuxFactory{dir: "/dev"} }

// linux/spi/spidev.h
const (
	spiIocWrMode        = 0x40016B01
	spiIocWrBitsPerWord = 0x40016B03
	spiIocWrMaxSpeedHz  = 0x40046B04
	spiIocMessage1      = 0x40206B00
)

// spiIocTransfer mirrors struct spi_ioc_transfer (32 bytes).
type spiIocTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

type linuxFactory struct {
	dir string
}

func (linuxFactory) Instance(cfg SPIBusConfig) (int, bool) {
	n, ok := strings.CutPrefix(cfg.ID, "spi")
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(n)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func (f linuxFactory) OpenSPI(inst int, cfg SPIBusConfig) (SPIBus, error) {
	hz := cfg.Hz
	if hz == 0 {
		hz = 1_000_000
	}
	return &linuxBus{dir: f.dir, bus: inst, hz: hz, mode: cfg.Mode}, nil
}

type linuxBus struct {
	dir  string
	bus  int
	hz   uint32
	mode uint8

	mu   sync.Mutex
	devs []*spidevFile
}

func (b *linuxBus) Device(cs int) (drivers.SPI, error) {
	if cs < 0 {
		return nil, errcode.UnknownPin
	}
	path := b.dir + "/spidev" + strconv.Itoa(b.bus) + "." + strconv.Itoa(cs)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &errcode.E{C: errcode.UnknownBus, Op: "open " + path, Err: err}
	}
	d := &spidevFile{fd: fd, hz: b.hz}
	mode, bits, hz := b.mode, uint8(8), b.hz
	for _, c := range []struct {
		req uintptr
		arg unsafe.Pointer
	}{
		{spiIocWrMode, unsafe.Pointer(&mode)},
		{spiIocWrBitsPerWord, unsafe.Pointer(&bits)},
		{spiIocWrMaxSpeedHz, unsafe.Pointer(&hz)},
	} {
		if err := ioctl(fd, c.req, c.arg); err != nil {
			_ = unix.Close(fd)
			return nil, &errcode.E{C: errcode.Unsupported, Op: "configure " + path, Err: err}
		}
	}
	b.mu.Lock()
	b.devs = append(b.devs, d)
	b.mu.Unlock()
	return d, nil
}

func (b *linuxBus) Close() error {
	b.mu.Lock()
	devs := b.devs
	b.devs = nil
	b.mu.Unlock()
	var first error
	for _, d := range devs {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// spidevFile is one /dev/spidevB.C handle.
type spidevFile struct {
	mu sync.Mutex
	fd int
	hz uint32
}

func (d *spidevFile) Tx(w, r []byte) error {
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	if n == 0 {
		return nil
	}
	tr := spiIocTransfer{length: uint32(n), speedHz: d.hz, bitsPerWord: 8}
	var wb, rb []byte
	if len(w) == n {
		wb = w
	} else {
		wb = make([]byte, n)
		copy(wb, w)
	}
	tr.txBuf = uint64(uintptr(unsafe.Pointer(&wb[0])))
	if r != nil {
		if len(r) == n {
			rb = r
		} else {
			rb = make([]byte, n)
		}
		tr.rxBuf = uint64(uintptr(unsafe.Pointer(&rb[0])))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return errcode.NotReady
	}
	err := ioctl(d.fd, spiIocMessage1, unsafe.Pointer(&tr))
	runtime.KeepAlive(wb)
	runtime.KeepAlive(rb)
	if err != nil {
		return err
	}
	if rb != nil && len(r) != n {
		copy(r, rb)
	}
	return nil
}

func (d *spidevFile) Transfer(b byte) (byte, error) {
	var w, r [1]byte
	w[0] = b
	err := d.Tx(w[:], r[:])
	return r[0], err
}

func (d *spidevFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
