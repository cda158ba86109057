package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"canhal-go/bus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEmbedded(t *testing.T, device, ini string) {
	t.Helper()
	old := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(d string) ([]byte, bool) {
		if d != device {
			return nil, false
		}
		return []byte(ini), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = old })
}

func TestLoad_EmbeddedPico(t *testing.T) {
	c, err := Load("pico", "")
	require.NoError(t, err)

	assert.Equal(t, SPI{Bus: "spi0", SCK: 18, SDI: 16, SDO: 19, CS: 17, Hz: 8_000_000}, c.SPI)
	assert.Equal(t, 16, c.CAN.OscillatorMHz)
	assert.Equal(t, 500, c.CAN.BitrateKbps)
	assert.Equal(t, "normal", c.CAN.Mode)
	assert.Equal(t, 5*time.Millisecond, c.CAN.PollInterval)
	assert.Equal(t, time.Second, c.CAN.HealthInterval)
	assert.False(t, c.Bridge.Enabled)
	assert.Equal(t, "canhal-pico", c.Bridge.ClientID)
}

func TestLoad_EmbeddedRPi(t *testing.T) {
	c, err := Load("rpi", "")
	require.NoError(t, err)

	assert.Equal(t, 8, c.CAN.OscillatorMHz)
	assert.Equal(t, 250, c.CAN.BitrateKbps)
	assert.Equal(t, ":9101", c.Metrics.Addr)
	assert.True(t, c.MDNS.Enabled)
	assert.Equal(t, "canhal", c.Bridge.Prefix)
	assert.Equal(t, map[string]any{"interval": "10s"}, c.Sections()["heartbeat"])

	// No [mdns] section: advertising stays off.
	p, err := Load("pico", "")
	require.NoError(t, err)
	assert.False(t, p.MDNS.Enabled)
}

func TestLoad_FileOverridesEmbedded(t *testing.T) {
	withEmbedded(t, "dev", "[can]\nbitrate = 500\noscillator = 16\n")
	path := filepath.Join(t.TempDir(), "canhal.ini")
	require.NoError(t, os.WriteFile(path, []byte(`
[can]
bitrate  = 125
filter.0 = std:0x123
filter.1 = ext:0x18FF50E5
mask.0   = 0x7FF

[bridge]
enabled = true
broker  = tcp://broker:1883
`), 0o644))

	c, err := Load("dev", path)
	require.NoError(t, err)
	assert.Equal(t, 125, c.CAN.BitrateKbps)
	assert.Equal(t, 16, c.CAN.OscillatorMHz)
	assert.ElementsMatch(t, []Filter{
		{Slot: 0, ID: 0x123},
		{Slot: 1, Extended: true, ID: 0x18FF50E5},
	}, c.CAN.Filters)
	assert.Equal(t, []Filter{{Slot: 0, ID: 0x7FF}}, c.CAN.Masks)
	assert.True(t, c.Bridge.Enabled)
	assert.Equal(t, "tcp://broker:1883", c.Bridge.Broker)
}

func TestLoad_Nothing(t *testing.T) {
	withEmbedded(t, "x", "")
	_, err := Load("unknown", "")
	assert.ErrorIs(t, err, ErrNoConfig)
}

func TestParse_BadFilters(t *testing.T) {
	for _, raw := range []string{
		"[can]\nfilter.6 = 0x1\n",
		"[can]\nmask.0 = fd:0x1\n",
		"[can]\nfilter.0 = std:0x800\n",
		"[can]\nfilter.0 = ext:0x20000000\n",
		"[can]\nfilter.x = 0x1\n",
	} {
		_, err := Parse("t", []byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestParse_UnknownModeFallsBack(t *testing.T) {
	c, err := Parse("t", []byte("[can]\nmode = turbo\n"))
	require.NoError(t, err)
	assert.Equal(t, "normal", c.CAN.Mode)
}

func TestConfig_PublishRetainedPerSection(t *testing.T) {
	withEmbedded(t, "dev", "[can]\nbitrate = 250\n\n[bridge]\nprefix = lab\n")

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService("")

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "dev")
	svc.Start(ctx, conn)

	sub := conn.Subscribe(bus.T(configPrefix, bus.Single))
	got := map[string]map[string]any{}
	deadline := time.Now().Add(600 * time.Millisecond)
	for (got["can"] == nil || got["bridge"] == nil) && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			require.Equal(t, 2, m.Topic.Len())
			require.True(t, m.Retained)
			got[m.Topic.At(1).(string)] = m.Payload.(map[string]any)
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.Equal(t, "250", got["can"]["bitrate"])
	assert.Equal(t, "lab", got["bridge"]["prefix"])
	// Defaults are published alongside the values that were set.
	assert.Equal(t, "16", got["can"]["oscillator"])
}

func TestConfig_PublishConfig_MissingDevice(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-device")
	svc := NewConfigService("")

	_, err := svc.publishConfig(context.Background(), conn)
	assert.Error(t, err)
}
