// Package canbus runs one MCP2515 controller on the local bus. It brings the
// chip up, polls it for received frames, transmits frames requested on
// can/tx and reports error counters.
package canbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"canhal-go/bus"
	"canhal-go/canmsg"
	"canhal-go/drivers/mcp2515"
	"canhal-go/errcode"
	"canhal-go/services/config"
	"canhal-go/x/timex"

	"github.com/brutella/can"
	log "github.com/sirupsen/logrus"
)

var (
	TopicRx     = bus.T("can", "rx")
	TopicTx     = bus.T("can", "tx")
	TopicState  = bus.T("can", "state")
	TopicHealth = bus.T("can", "health")
)

// maxDrain bounds the frames read per poll tick. The driver returns one
// frame per call.
const maxDrain = 8

// Controller is the part of *mcp2515.Device the service drives.
type Controller interface {
	Reset() error
	SetMode(mcp2515.Mode) error
	SetFilter(mcp2515.RXF, bool, uint32) error
	SetFilterMask(mcp2515.Mask, bool, uint32) error
	SendMessage(*canmsg.Message) error
	ReadMessage(*canmsg.Message) error
	CheckReceive() (bool, error)
	Status() (byte, error)
	ClearInterrupts(mask byte) error
	ErrorFlags() (mcp2515.ErrorFlags, error)
	ErrorCounters() (tec, rec uint8, err error)
	ClearOverflow() error
}

var _ Controller = (*mcp2515.Device)(nil)

type Options struct {
	Mode           mcp2515.Mode
	PollInterval   time.Duration
	HealthInterval time.Duration
	TxRetries      int
	TxRetryDelay   time.Duration
	Filters        []config.Filter
	Masks          []config.Filter
}

func DefaultOptions() Options {
	return Options{
		Mode:           mcp2515.ModeNormal,
		PollInterval:   5 * time.Millisecond,
		HealthInterval: time.Second,
		TxRetries:      3,
		TxRetryDelay:   time.Millisecond,
	}
}

// OptionsFromConfig maps the [can] section onto Options.
func OptionsFromConfig(c config.CAN) (Options, error) {
	o := DefaultOptions()
	if c.Mode != "" {
		m, ok := mcp2515.ParseMode(c.Mode)
		if !ok {
			return o, errcode.InvalidParams
		}
		o.Mode = m
	}
	if c.PollInterval > 0 {
		o.PollInterval = c.PollInterval
	}
	if c.HealthInterval > 0 {
		o.HealthInterval = c.HealthInterval
	}
	if c.TxRetries >= 0 {
		o.TxRetries = c.TxRetries
	}
	o.Filters = c.Filters
	o.Masks = c.Masks
	return o, nil
}

type Service struct {
	conn *bus.Connection
	opts Options

	mu  sync.Mutex // serialises controller access
	dev Controller

	hmu      sync.RWMutex
	handlers []can.Handler

	busOff bool
	up     atomic.Bool
	rx     canmsg.Message
}

func New(conn *bus.Connection, dev Controller, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultOptions().HealthInterval
	}
	return &Service{conn: conn, dev: dev, opts: opts}
}

// Subscribe registers h for every received frame. Handlers run on the poll
// goroutine and must not block.
func (s *Service) Subscribe(h can.Handler) {
	s.hmu.Lock()
	s.handlers = append(s.handlers, h)
	s.hmu.Unlock()
}

// Ready reports whether the controller is configured and not bus-off.
func (s *Service) Ready() bool { return s.up.Load() }

// Run brings the controller up and serves it until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	// Requests made during bring-up wait in the subscription queue.
	txSub := s.conn.Subscribe(TopicTx)
	defer s.conn.Unsubscribe(txSub)

	s.publishState("idle", "starting", nil)
	if !s.bringUp(ctx) {
		return ctx.Err()
	}

	poll := time.NewTicker(s.opts.PollInterval)
	defer poll.Stop()
	health := time.NewTicker(s.opts.HealthInterval)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			s.up.Store(false)
			s.publishState("idle", "stopped", nil)
			return ctx.Err()
		case msg, ok := <-txSub.Channel():
			if !ok {
				return nil
			}
			s.handleTx(ctx, msg)
		case <-poll.C:
			s.Poll()
		case <-health.C:
			s.CheckHealth()
		}
	}
}

// bringUp resets and configures the controller, retrying with backoff.
func (s *Service) bringUp(ctx context.Context) bool {
	backoff := backoffSeq(100*time.Millisecond, 5*time.Second)
	for {
		err := s.setup()
		if err == nil {
			s.up.Store(true)
			log.Infof("[CAN] controller up, mode %s", s.opts.Mode)
			s.publishState("up", "running", nil)
			return true
		}
		Errors.WithLabelValues("reset").Inc()
		delay := backoff()
		log.Warnf("[CAN] init failed: %v (retry in %s)", err, delay)
		s.publishState("degraded", "init_failed_retrying", err)
		if !sleep(ctx, delay) {
			return false
		}
	}
}

func (s *Service) setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	Resets.Inc()
	if err := s.dev.Reset(); err != nil {
		return errcode.Wrap("can.reset", err)
	}
	for _, m := range s.opts.Masks {
		if err := s.dev.SetFilterMask(mcp2515.Mask(m.Slot), m.Extended, m.ID); err != nil {
			return errcode.Wrap("can.mask", err)
		}
	}
	for _, f := range s.opts.Filters {
		if err := s.dev.SetFilter(mcp2515.RXF(f.Slot), f.Extended, f.ID); err != nil {
			return errcode.Wrap("can.filter", err)
		}
	}
	// Filters and masks leave the chip in Configuration mode.
	if err := s.dev.SetMode(s.opts.Mode); err != nil {
		return errcode.Wrap("can.mode", err)
	}
	s.busOff = false
	return nil
}

// Poll drains pending frames, publishes each on can/rx and returns how many
// were delivered. Undecodable frames are dropped.
func (s *Service) Poll() int {
	s.mu.Lock()
	ok, err := s.dev.CheckReceive()
	s.mu.Unlock()
	if err != nil {
		Errors.WithLabelValues("status").Inc()
		log.Warnf("[CAN] status: %v", err)
		return 0
	}
	if !ok {
		return 0
	}

	n := 0
	for i := 0; i < maxDrain; i++ {
		s.mu.Lock()
		err = s.dev.ReadMessage(&s.rx)
		m := s.rx
		s.mu.Unlock()
		if errors.Is(err, mcp2515.ErrNoMsg) {
			break
		}
		if errors.Is(err, mcp2515.ErrBadDLC) {
			// The chip keeps RXnIF set on a frame it cannot decode.
			Errors.WithLabelValues("bad_dlc").Inc()
			log.Warnf("[CAN] dropped frame: %v", err)
			if err = s.releaseRx(); err != nil {
				Errors.WithLabelValues("read").Inc()
				log.Warnf("[CAN] release rx: %v", err)
				break
			}
			continue
		}
		if err != nil {
			Errors.WithLabelValues("read").Inc()
			log.Warnf("[CAN] read: %v", err)
			break
		}
		s.dispatch(m)
		n++
	}
	return n
}

// releaseRx frees the buffer ReadMessage last looked at: RXB0 when it is
// pending, RXB1 otherwise.
func (s *Service) releaseRx() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.dev.Status()
	if err != nil {
		return err
	}
	mask := byte(mcp2515.IntRX1IF)
	if st&mcp2515.StatRX0IF != 0 {
		mask = mcp2515.IntRX0IF
	}
	return s.dev.ClearInterrupts(mask)
}

func (s *Service) dispatch(m canmsg.Message) {
	RxFrames.Inc()
	log.Debugf("[CAN] rx id=%x ext=%v rtr=%v dlc=%d", m.ID(), m.Extended(), m.RTR(), m.DLC())
	s.conn.Publish(s.conn.NewMessage(TopicRx, m, false))

	s.hmu.RLock()
	defer s.hmu.RUnlock()
	if len(s.handlers) == 0 {
		return
	}
	f := m.ToFrame()
	for _, h := range s.handlers {
		h.Handle(f)
	}
}

// Send transmits m, retrying while every transmit buffer is pending.
func (s *Service) Send(ctx context.Context, m canmsg.Message) error {
	for attempt := 0; ; attempt++ {
		s.mu.Lock()
		err := s.dev.SendMessage(&m)
		s.mu.Unlock()
		switch {
		case err == nil:
			TxFrames.Inc()
			return nil
		case !errors.Is(err, mcp2515.ErrAllTxBusy):
			TxFailures.Inc()
			return errcode.Wrap("can.send", err)
		}
		TxBusy.Inc()
		if attempt >= s.opts.TxRetries {
			return errcode.Wrap("can.send", err)
		}
		if !sleep(ctx, s.opts.TxRetryDelay) {
			return ctx.Err()
		}
	}
}

func (s *Service) handleTx(ctx context.Context, msg *bus.Message) {
	m, ok := messageFromPayload(msg.Payload)
	if !ok {
		s.conn.Reply(msg, errcode.InvalidPayload, false)
		return
	}
	err := s.Send(ctx, m)
	if err != nil {
		log.Warnf("[CAN] tx id=%x: %v", m.ID(), err)
	}
	s.conn.Reply(msg, errcode.Of(err), false)
}

func messageFromPayload(p any) (canmsg.Message, bool) {
	switch v := p.(type) {
	case canmsg.Message:
		return v, true
	case *canmsg.Message:
		if v == nil {
			return canmsg.Message{}, false
		}
		return *v, true
	case can.Frame:
		return canmsg.FromFrame(v), true
	case *can.Frame:
		if v == nil {
			return canmsg.Message{}, false
		}
		return canmsg.FromFrame(*v), true
	}
	return canmsg.Message{}, false
}

// CheckHealth samples EFLG and the error counters, publishes them retained
// on can/health and tracks bus-off in the service state.
func (s *Service) CheckHealth() {
	s.mu.Lock()
	flags, err := s.dev.ErrorFlags()
	var tec, rec uint8
	if err == nil {
		tec, rec, err = s.dev.ErrorCounters()
	}
	if err == nil && flags&(mcp2515.EflgRX0OVR|mcp2515.EflgRX1OVR) != 0 {
		err = s.dev.ClearOverflow()
	}
	s.mu.Unlock()
	if err != nil {
		Errors.WithLabelValues("health").Inc()
		log.Warnf("[CAN] health: %v", err)
		return
	}

	if flags.Has(mcp2515.EflgRX0OVR) {
		RxOverflows.Inc()
	}
	if flags.Has(mcp2515.EflgRX1OVR) {
		RxOverflows.Inc()
	}
	TEC.Set(float64(tec))
	REC.Set(float64(rec))

	busOff := flags.Has(mcp2515.EflgTXBO)
	s.conn.Publish(s.conn.NewMessage(TopicHealth, map[string]any{
		"tec":           int(tec),
		"rec":           int(rec),
		"eflg":          int(flags),
		"bus_off":       busOff,
		"error_passive": flags&(mcp2515.EflgTXEP|mcp2515.EflgRXEP) != 0,
		"warning":       flags.Has(mcp2515.EflgEWARN),
		"ts_ms":         timex.NowMs(),
	}, true))

	if busOff == s.busOff {
		return
	}
	s.busOff = busOff
	if busOff {
		BusOff.Set(1)
		s.up.Store(false)
		log.Errorf("[CAN] bus-off (tec=%d)", tec)
		s.publishState("degraded", "bus_off", nil)
	} else {
		BusOff.Set(0)
		s.up.Store(true)
		log.Infof("[CAN] bus-off cleared")
		s.publishState("up", "running", nil)
	}
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,
		"status": status,
		"ts_ms":  timex.NowMs(),
	}
	if err != nil {
		payload["error"] = err.Error()
		payload["code"] = string(errcode.Of(err))
	}
	s.conn.Publish(s.conn.NewMessage(TopicState, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
