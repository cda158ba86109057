package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: INI text for that device. A config file, when given, is layered on
// top and wins key by key.
// -----------------------------------------------------------------------------

// Pico with an MCP2515 module on GP16..GP19, 16 MHz crystal.
const cfgPico = `
[spi]
bus  = spi0
sck  = 18
sdi  = 16
sdo  = 19
cs   = 17
hz   = 8000000

[can]
oscillator    = 16
bitrate       = 500
mode          = normal
poll_interval = 5ms
tx_retries    = 3

[log]
level = info
`

// Raspberry Pi with an MCP2515 hat on /dev/spidev0.0, 8 MHz crystal.
const cfgRPi = `
[spi]
bus = spi0
cs  = 0
hz  = 10000000

[can]
oscillator      = 8
bitrate         = 250
mode            = normal
poll_interval   = 2ms
health_interval = 1s
tx_retries      = 5

[bridge]
enabled   = false
broker    = tcp://localhost:1883
client_id = canhal
prefix    = canhal

[heartbeat]
interval = 10s

[metrics]
addr = :9101

[mdns]
enabled = true

[log]
level = info
`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"rpi":  []byte(cfgRPi),
}
