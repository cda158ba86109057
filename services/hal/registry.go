// Package hal owns the SPI hardware: it opens buses, hands out one
// transport per chip-select line and refuses double claims.
package hal

import (
	"io"
	"sync"

	"canhal-go/errcode"
	"canhal-go/services/hal/internal/platform"

	"tinygo.org/x/drivers"
)

type (
	SPIBusConfig = platform.SPIBusConfig
	Factory      = platform.Factory
	SPIBus       = platform.SPIBus
)

// DefaultFactory is the factory compiled for this target.
func DefaultFactory() Factory { return platform.Default() }

type openBus struct {
	inst int
	hw   SPIBus
}

type csKey struct {
	bus string
	cs  int
}

type claim struct {
	devID string
	dev   drivers.SPI
}

// Registry tracks which bus instances and chip-select lines are in use.
// Acquisition is explicit; a second claim fails instead of sharing.
type Registry struct {
	mu        sync.Mutex
	f         Factory
	buses     map[string]*openBus // bus id -> bus
	instances map[int]string      // hw instance -> bus id
	devices   map[csKey]claim
}

// NewRegistry uses f, or the platform default when f is nil.
func NewRegistry(f Factory) *Registry {
	if f == nil {
		f = platform.Default()
	}
	return &Registry{
		f:         f,
		buses:     make(map[string]*openBus),
		instances: make(map[int]string),
		devices:   make(map[csKey]claim),
	}
}

// OpenSPIBus maps cfg to a hardware instance and claims it under cfg.ID.
func (r *Registry) OpenSPIBus(cfg SPIBusConfig) error {
	if cfg.ID == "" {
		return errcode.InvalidParams
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, open := r.buses[cfg.ID]; open {
		return errcode.BusInUse
	}
	inst, ok := r.f.Instance(cfg)
	if !ok {
		return errcode.UnknownBus
	}
	if _, taken := r.instances[inst]; taken {
		return errcode.BusInUse
	}
	hw, err := r.f.OpenSPI(inst, cfg)
	if err != nil {
		return err
	}
	r.buses[cfg.ID] = &openBus{inst: inst, hw: hw}
	r.instances[inst] = cfg.ID
	return nil
}

// ClaimSPIDevice gives devID the transport for chip-select cs on busID.
func (r *Registry) ClaimSPIDevice(devID, busID string, cs int) (drivers.SPI, error) {
	if devID == "" {
		return nil, errcode.InvalidParams
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.buses[busID]
	if b == nil {
		return nil, errcode.UnknownBus
	}
	k := csKey{busID, cs}
	if c, inUse := r.devices[k]; inUse && c.devID != "" {
		return nil, errcode.PinInUse
	}
	dev, err := b.hw.Device(cs)
	if err != nil {
		return nil, err
	}
	r.devices[k] = claim{devID: devID, dev: dev}
	return dev, nil
}

// MustClaimSPIDevice is ClaimSPIDevice for start-up wiring; it panics on
// failure.
func (r *Registry) MustClaimSPIDevice(devID, busID string, cs int) drivers.SPI {
	dev, err := r.ClaimSPIDevice(devID, busID, cs)
	if err != nil {
		panic("hal: claim " + devID + " on " + busID + ": " + err.Error())
	}
	return dev
}

// ReleaseSPIDevice frees cs if devID holds it.
func (r *Registry) ReleaseSPIDevice(devID, busID string, cs int) {
	r.mu.Lock()
	k := csKey{busID, cs}
	c, ok := r.devices[k]
	if ok && c.devID == devID {
		delete(r.devices, k)
	} else {
		ok = false
	}
	r.mu.Unlock()
	if ok {
		closeDev(c.dev)
	}
}

// CloseSPIBus releases every device on busID and the bus itself.
func (r *Registry) CloseSPIBus(busID string) error {
	r.mu.Lock()
	b := r.buses[busID]
	if b == nil {
		r.mu.Unlock()
		return errcode.UnknownBus
	}
	var devs []drivers.SPI
	for k, c := range r.devices {
		if k.bus == busID {
			devs = append(devs, c.dev)
			delete(r.devices, k)
		}
	}
	delete(r.buses, busID)
	delete(r.instances, b.inst)
	r.mu.Unlock()

	for _, d := range devs {
		closeDev(d)
	}
	return b.hw.Close()
}

// Close releases everything.
func (r *Registry) Close() error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.buses))
	for id := range r.buses {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var first error
	for _, id := range ids {
		if err := r.CloseSPIBus(id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Owner reports who holds cs on busID.
func (r *Registry) Owner(busID string, cs int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.devices[csKey{busID, cs}]
	return c.devID, ok
}

func closeDev(d drivers.SPI) {
	if c, ok := d.(io.Closer); ok {
		_ = c.Close()
	}
}
