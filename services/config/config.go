package config

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"canhal-go/bus"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// -----------------------------------------------------------------------------
// String constants
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

var ErrNoConfig = errors.New("config: no embedded config and no file")

// -----------------------------------------------------------------------------
// Typed view
// -----------------------------------------------------------------------------

type SPI struct {
	Bus           string
	SCK, SDI, SDO int
	CS            int
	Hz            uint32
	Mode          uint8
}

// Filter is one acceptance filter or mask entry, written "std:0x123" or
// "ext:0x18FF0000".
type Filter struct {
	Slot     int
	Extended bool
	ID       uint32
}

type CAN struct {
	OscillatorMHz  int
	BitrateKbps    int
	Mode           string
	PollInterval   time.Duration
	HealthInterval time.Duration
	TxRetries      int
	Filters        []Filter
	Masks          []Filter
}

type Bridge struct {
	Enabled  bool
	Broker   string
	ClientID string
	Prefix   string
}

// MDNS advertises the metrics endpoint on the local network.
type MDNS struct {
	Enabled bool
	Name    string
}

type Config struct {
	Device  string
	SPI     SPI
	CAN     CAN
	Bridge  Bridge
	Metrics struct{ Addr string }
	MDNS    MDNS
	Log     struct{ Level string }

	file *ini.File
}

// Load layers the embedded config for device and the optional file at path.
// Either may be absent, not both.
func Load(device, path string) (*Config, error) {
	var sources []any
	if raw, ok := EmbeddedConfigLookup(device); ok && len(raw) > 0 {
		sources = append(sources, raw)
	}
	if path != "" {
		sources = append(sources, path)
	}
	if len(sources) == 0 {
		return nil, ErrNoConfig
	}
	f, err := ini.Load(sources[0], sources[1:]...)
	if err != nil {
		return nil, err
	}
	return parse(device, f)
}

// Parse reads INI text.
func Parse(device string, raw []byte) (*Config, error) {
	f, err := ini.Load(raw)
	if err != nil {
		return nil, err
	}
	return parse(device, f)
}

func parse(device string, f *ini.File) (*Config, error) {
	c := &Config{Device: device, file: f}

	s := f.Section("spi")
	c.SPI.Bus = s.Key("bus").MustString("spi0")
	c.SPI.SCK = s.Key("sck").MustInt(-1)
	c.SPI.SDI = s.Key("sdi").MustInt(-1)
	c.SPI.SDO = s.Key("sdo").MustInt(-1)
	c.SPI.CS = s.Key("cs").MustInt(0)
	c.SPI.Hz = uint32(s.Key("hz").MustUint(1_000_000))
	c.SPI.Mode = uint8(s.Key("mode").MustUint(0))

	s = f.Section("can")
	c.CAN.OscillatorMHz = s.Key("oscillator").MustInt(16)
	c.CAN.BitrateKbps = s.Key("bitrate").MustInt(500)
	c.CAN.Mode = s.Key("mode").In("normal", []string{"normal", "loopback", "listenonly", "sleep"})
	c.CAN.PollInterval = s.Key("poll_interval").MustDuration(5 * time.Millisecond)
	c.CAN.HealthInterval = s.Key("health_interval").MustDuration(time.Second)
	c.CAN.TxRetries = s.Key("tx_retries").MustInt(3)
	var err error
	if c.CAN.Filters, err = parseFilters(s, "filter.", 6); err != nil {
		return nil, err
	}
	if c.CAN.Masks, err = parseFilters(s, "mask.", 2); err != nil {
		return nil, err
	}

	s = f.Section("bridge")
	c.Bridge.Enabled = s.Key("enabled").MustBool(false)
	c.Bridge.Broker = s.Key("broker").String()
	c.Bridge.ClientID = s.Key("client_id").MustString("canhal-" + device)
	c.Bridge.Prefix = s.Key("prefix").MustString("canhal")

	c.Metrics.Addr = f.Section("metrics").Key("addr").String()
	if f.HasSection("mdns") {
		s = f.Section("mdns")
		c.MDNS.Enabled = s.Key("enabled").MustBool(false)
		c.MDNS.Name = s.Key("name").String()
	}
	c.Log.Level = f.Section("log").Key("level").MustString("info")
	return c, nil
}

func parseFilters(s *ini.Section, prefix string, slots int) ([]Filter, error) {
	var out []Filter
	for _, k := range s.Keys() {
		name, ok := strings.CutPrefix(k.Name(), prefix)
		if !ok {
			continue
		}
		slot, err := strconv.Atoi(name)
		if err != nil || slot < 0 || slot >= slots {
			return nil, errors.New("config: bad slot in " + k.Name())
		}
		f, err := ParseFilter(k.String())
		if err != nil {
			return nil, errors.New("config: " + k.Name() + ": " + err.Error())
		}
		f.Slot = slot
		out = append(out, f)
	}
	return out, nil
}

// ParseFilter reads "std:<id>" or "ext:<id>"; a bare id is standard.
func ParseFilter(v string) (Filter, error) {
	var f Filter
	kind, id, found := strings.Cut(strings.TrimSpace(v), ":")
	if !found {
		kind, id = "std", kind
	}
	switch kind {
	case "std":
	case "ext":
		f.Extended = true
	default:
		return f, errors.New("unknown frame kind " + kind)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(id), 0, 32)
	if err != nil {
		return f, err
	}
	limit := uint64(0x7FF)
	if f.Extended {
		limit = 0x1FFFFFFF
	}
	if n > limit {
		return f, errors.New("id out of range")
	}
	f.ID = uint32(n)
	return f, nil
}

// Sections returns every non-default section as key/value maps.
func (c *Config) Sections() map[string]map[string]any {
	out := make(map[string]map[string]any)
	if c.file == nil {
		return out
	}
	for _, s := range c.file.Sections() {
		if s.Name() == ini.DefaultSection {
			continue
		}
		m := make(map[string]any, len(s.Keys()))
		for _, k := range s.Keys() {
			m[k.Name()] = k.String()
		}
		out[s.Name()] = m
	}
	return out
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
	Path string // optional file layered over the embedded config
}

func NewConfigService(path string) *ConfigService {
	return &ConfigService{Name: serviceName, Path: path}
}

// publishConfig loads the device config and publishes each section retained
// on config/<section>.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) (*Config, error) {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" && s.Path == "" {
		return nil, errors.New("missing device ID in context")
	}
	cfg, err := Load(device, s.Path)
	if err != nil {
		return nil, err
	}
	for name, kv := range cfg.Sections() {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, name), kv, true))
	}
	return cfg, nil
}

// Start publishes the config in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if _, err := s.publishConfig(ctx, conn); err != nil {
			log.Errorf("[CONFIG] publish failed: %v", err)
		}
	}()
}

// Publish loads and publishes synchronously and returns the typed config.
func (s *ConfigService) Publish(ctx context.Context, conn *bus.Connection) (*Config, error) {
	return s.publishConfig(ctx, conn)
}
