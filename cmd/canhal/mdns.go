package main

import (
	"context"
	"net"
	"os"
	"strconv"

	"canhal-go/services/config"

	"github.com/grandcat/zeroconf"
	log "github.com/sirupsen/logrus"
)

const mdnsServiceType = "_canhal._tcp"

// startMDNS advertises the metrics listener until ctx ends. It is a no-op
// when disabled or when addr carries no port.
func startMDNS(ctx context.Context, cfg *config.Config, addr string) {
	if !cfg.MDNS.Enabled {
		return
	}
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		log.Warnf("[MDNS] bad metrics addr %q: %v", addr, err)
		return
	}
	port, err := strconv.Atoi(p)
	if err != nil || port == 0 {
		log.Warnf("[MDNS] no port in %q", addr)
		return
	}
	instance := cfg.MDNS.Name
	if instance == "" {
		host, _ := os.Hostname()
		instance = "canhal-" + host
	}
	meta := []string{
		"device=" + cfg.Device,
		"bus=" + cfg.SPI.Bus,
		"bitrate=" + strconv.Itoa(cfg.CAN.BitrateKbps),
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		log.Warnf("[MDNS] register: %v", err)
		return
	}
	log.Infof("[MDNS] advertising %s as %q on port %d", mdnsServiceType, instance, port)
	go func() {
		<-ctx.Done()
		svc.Shutdown()
	}()
}
