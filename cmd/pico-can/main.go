//go:build rp2040 || rp2350

// Command pico-can checks an MCP2515 module wired to a Pico: it sends a
// frame to itself in loopback mode, then echoes every received frame back
// onto the bus with the id incremented.
package main

import (
	"errors"
	"time"

	"canhal-go/canmsg"
	"canhal-go/drivers/mcp2515"
	"canhal-go/services/hal"
)

// Wiring as in the "pico" embedded config.
const (
	busID  = "spi0"
	pinSCK = 18
	pinSDI = 16
	pinSDO = 19
	pinCS  = 17
	spiHz  = 8_000_000
)

func fatal(step string, err error) {
	for {
		println("[pico-can]", step, "failed:", err.Error())
		time.Sleep(2 * time.Second)
	}
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[pico-can] boot")

	reg := hal.NewRegistry(nil)
	if err := reg.OpenSPIBus(hal.SPIBusConfig{ID: busID, SCK: pinSCK, SDI: pinSDI, SDO: pinSDO, Hz: spiHz}); err != nil {
		fatal("open spi", err)
	}
	spi := reg.MustClaimSPIDevice("mcp2515", busID, pinCS)

	dev := mcp2515.New(spi, mcp2515.DefaultConfig())
	if err := dev.Reset(); err != nil {
		fatal("reset", err)
	}
	if err := selfTest(dev); err != nil {
		fatal("loopback", err)
	}
	println("[pico-can] loopback ok")
	if err := dev.SetMode(mcp2515.ModeNormal); err != nil {
		fatal("normal mode", err)
	}

	var rx canmsg.Message
	for {
		err := dev.ReadMessage(&rx)
		if errors.Is(err, mcp2515.ErrNoMsg) {
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			println("[pico-can] read:", err.Error())
			continue
		}
		println("[pico-can] rx id", rx.ID(), "dlc", rx.DLC())

		tx := rx
		tx.SetID(echoID(&rx))
		for tries := 0; ; tries++ {
			err = dev.SendMessage(&tx)
			if !errors.Is(err, mcp2515.ErrAllTxBusy) || tries == 3 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		if err != nil {
			println("[pico-can] echo:", err.Error())
		}
	}
}

// echoID is the id after rx's, wrapping within the frame format.
func echoID(rx *canmsg.Message) uint32 {
	if rx.Extended() {
		return (rx.ID() + 1) & canmsg.MaskEFF
	}
	return (rx.ID() + 1) & canmsg.MaskSFF
}

// selfTest sends one frame in loopback mode and expects it back intact.
func selfTest(dev *mcp2515.Device) error {
	if err := dev.SetMode(mcp2515.ModeLoopback); err != nil {
		return err
	}
	out := canmsg.New(0x123, canmsg.Standard, 0xDE, 0xAD, 0xBE, 0xEF)
	if err := dev.SendMessage(&out); err != nil {
		return err
	}
	var in canmsg.Message
	deadline := time.Now().Add(50 * time.Millisecond)
	for {
		err := dev.ReadMessage(&in)
		if err == nil {
			break
		}
		if !errors.Is(err, mcp2515.ErrNoMsg) || time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Millisecond)
	}
	if in.ID() != out.ID() || string(in.Payload()) != string(out.Payload()) {
		return errors.New("frame mismatch")
	}
	return nil
}
