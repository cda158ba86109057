// Command canhal runs an MCP2515 on a Linux spidev bus: it serves the CAN
// service on the local bus, optionally bridges it to MQTT and exposes
// Prometheus metrics, advertised over mDNS.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"canhal-go/bus"
	"canhal-go/drivers/mcp2515"
	"canhal-go/services/bridge"
	"canhal-go/services/canbus"
	"canhal-go/services/config"
	"canhal-go/services/hal"
	"canhal-go/services/heartbeat"

	log "github.com/sirupsen/logrus"
)

func main() {
	device := flag.String("device", "rpi", "Embedded config to start from")
	path := flag.String("config", "", "INI file layered over the embedded config")
	logLevel := flag.String("log-level", "", "Log level: debug|info|warn|error (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Metrics listen address (overrides config); empty disables")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), config.CtxDeviceKey, *device))
	defer cancel()

	b := bus.NewBus(64)
	cfg, err := config.NewConfigService(*path).Publish(ctx, b.NewConnection("config"))
	if err != nil {
		log.Fatalf("[MAIN] config: %v", err)
	}

	lvl := cfg.Log.Level
	if *logLevel != "" {
		lvl = *logLevel
	}
	if l, err := log.ParseLevel(lvl); err == nil {
		log.SetLevel(l)
	} else {
		log.Warnf("[MAIN] bad log level %q, keeping %s", lvl, log.GetLevel())
	}

	osc, ok := mcp2515.OscillatorFromMHz(cfg.CAN.OscillatorMHz)
	if !ok {
		log.Fatalf("[MAIN] unsupported oscillator %d MHz", cfg.CAN.OscillatorMHz)
	}
	rate, ok := mcp2515.BitrateFromKbps(cfg.CAN.BitrateKbps)
	if !ok {
		log.Fatalf("[MAIN] unsupported bitrate %d kbps", cfg.CAN.BitrateKbps)
	}
	opts, err := canbus.OptionsFromConfig(cfg.CAN)
	if err != nil {
		log.Fatalf("[MAIN] can mode %q: %v", cfg.CAN.Mode, err)
	}

	reg := hal.NewRegistry(nil)
	defer reg.Close()
	err = reg.OpenSPIBus(hal.SPIBusConfig{
		ID:   cfg.SPI.Bus,
		SCK:  cfg.SPI.SCK,
		SDI:  cfg.SPI.SDI,
		SDO:  cfg.SPI.SDO,
		Hz:   cfg.SPI.Hz,
		Mode: cfg.SPI.Mode,
	})
	if err != nil {
		log.Fatalf("[MAIN] open %s: %v", cfg.SPI.Bus, err)
	}
	spi, err := reg.ClaimSPIDevice("mcp2515", cfg.SPI.Bus, cfg.SPI.CS)
	if err != nil {
		log.Fatalf("[MAIN] claim %s cs %d: %v", cfg.SPI.Bus, cfg.SPI.CS, err)
	}
	log.Infof("[MAIN] mcp2515 on %s cs %d, %s crystal, %d kbps", cfg.SPI.Bus, cfg.SPI.CS, osc, rate.Kbps())

	dev := mcp2515.New(spi, mcp2515.Config{Oscillator: osc, Bitrate: rate})
	svc := canbus.New(b.NewConnection("can"), dev, opts)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = svc.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		bridge.Start(ctx, b.NewConnection("bridge"))
	}()
	hb := &heartbeat.Service{}
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	addr := cfg.Metrics.Addr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	if addr != "" {
		srv := canbus.StartHTTP(addr, svc.Ready)
		defer func() { _ = srv.Shutdown(context.Background()) }()
		startMDNS(ctx, cfg, addr)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	log.Infof("[MAIN] %s, shutting down", s)
	cancel()
	wg.Wait()
}
