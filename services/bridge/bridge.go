// Package bridge mirrors CAN traffic to an MQTT broker. Received frames go
// out as JSON on <prefix>/rx/<id>; JSON frames arriving on <prefix>/tx are
// handed to the CAN service.
package bridge

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"canhal-go/bus"
	"canhal-go/canmsg"
	"canhal-go/services/canbus"
	"canhal-go/x/conv"
	"canhal-go/x/timex"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start starts the bridge service. It blocks until ctx is cancelled.
// It listens for config on topic {"config","bridge"} and (re)configures the link.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:       conn,
		stateTopic: bus.T("bridge", "state"),
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config arrives on "config/bridge" as JSON or as the string map published
// by the config service.
type Config struct {
	Enabled  bool
	Broker   string // tcp://host:1883
	ClientID string
	Prefix   string
	Username string
	Password string
}

// -----------------------------------------------------------------------------
// MQTT client
// -----------------------------------------------------------------------------

// Client is the slice of an MQTT client the bridge uses.
type Client interface {
	Connect(ctx context.Context) error
	Publish(topic string, payload []byte) error
	Subscribe(topic string, h func(topic string, payload []byte)) error
	// Lost yields the error that ended the connection.
	Lost() <-chan error
	Disconnect()
}

// MQTTDial builds a client for cfg. Tests replace it.
var MQTTDial = func(cfg Config) (Client, error) { return newPahoClient(cfg), nil }

const (
	connectTimeout = 5 * time.Second
	publishTimeout = time.Second
)

type pahoClient struct {
	c    MQTT.Client
	lost chan error
}

func newPahoClient(cfg Config) *pahoClient {
	pc := &pahoClient{lost: make(chan error, 1)}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	// runLink owns reconnects.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		select {
		case pc.lost <- err:
		default:
		}
	})
	pc.c = MQTT.NewClient(opts)
	return pc
}

func (p *pahoClient) Connect(ctx context.Context) error {
	return wait(ctx, p.c.Connect())
}

func (p *pahoClient) Publish(topic string, payload []byte) error {
	t := p.c.Publish(topic, 0, false, payload)
	if !t.WaitTimeout(publishTimeout) {
		return errors.New("mqtt: publish timeout")
	}
	return t.Error()
}

func (p *pahoClient) Subscribe(topic string, h func(string, []byte)) error {
	t := p.c.Subscribe(topic, 0, func(_ MQTT.Client, m MQTT.Message) {
		h(m.Topic(), m.Payload())
	})
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return wait(ctx, t)
}

func (p *pahoClient) Lost() <-chan error { return p.lost }

func (p *pahoClient) Disconnect() {
	if p.c.IsConnected() {
		p.c.Disconnect(250)
	}
}

func wait(ctx context.Context, t MQTT.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
	done   chan struct{}
}

// run waits for config and supervises a single link instance.
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "bridge"))
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			if !cfg.Enabled {
				s.stopCurrent()
				s.publishState("idle", "disabled", nil)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

// stopCurrent cancels the running link and waits for it to exit.
func (s *Service) stopCurrent() {
	s.mu.Lock()
	cancel, done := s.curRun, s.done
	s.curRun, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.stopCurrent()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.mu.Lock()
	s.curRun, s.done = cancel, done
	s.mu.Unlock()

	log.Infof("[BRIDGE] connecting to %s as %s (prefix %q)", cfg.Broker, cfg.ClientID, cfg.Prefix)
	go func() {
		defer close(done)
		s.runLink(ctx, cfg)
	}()
}

// -----------------------------------------------------------------------------
// Link supervision and I/O
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	backoff := backoffSeq(250*time.Millisecond, 30*time.Second)
	for {
		cl, err := MQTTDial(cfg)
		if err != nil {
			s.publishState("error", "client_init_failed", err)
			return
		}

		status := "dial_failed_retrying"
		if err = cl.Connect(ctx); err == nil {
			status = "link_lost_retrying"
			err = s.handleLink(ctx, cl, cfg)
		}
		cl.Disconnect()
		if ctx.Err() != nil {
			return
		}

		delay := backoff()
		log.Warnf("[BRIDGE] %s: %v (retry in %s)", status, err, delay)
		s.publishState("degraded", status, fmt.Errorf("%v (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

// handleLink owns the active connection. It returns nil only when ctx ends.
func (s *Service) handleLink(ctx context.Context, cl Client, cfg Config) error {
	inbound := make(chan []byte, 16)
	txTopic := cfg.Prefix + "/tx"
	err := cl.Subscribe(txTopic, func(_ string, p []byte) {
		select {
		case inbound <- append([]byte(nil), p...):
		default:
			log.Warnf("[BRIDGE] inbound queue full, frame dropped")
		}
	})
	if err != nil {
		return err
	}

	rxSub := s.conn.Subscribe(canbus.TopicRx)
	defer s.conn.Unsubscribe(rxSub)

	s.publishState("up", "link_established", nil)

	var idbuf [8]byte
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-cl.Lost():
			if err == nil {
				err = errors.New("connection lost")
			}
			return err
		case msg, ok := <-rxSub.Channel():
			if !ok {
				return errors.New("rx subscription closed")
			}
			m, ok := msg.Payload.(canmsg.Message)
			if !ok {
				continue
			}
			b, err := EncodeFrame(m)
			if err != nil {
				continue
			}
			topic := cfg.Prefix + "/rx/" + string(conv.IDHex(idbuf[:], m.ID(), m.Extended()))
			if err := cl.Publish(topic, b); err != nil {
				return err
			}
		case p := <-inbound:
			m, err := DecodeFrame(p)
			if err != nil {
				log.Warnf("[BRIDGE] %s: %v", txTopic, err)
				continue
			}
			log.Debugf("[BRIDGE] tx id=%x dlc=%d", m.ID(), m.DLC())
			s.conn.Publish(s.conn.NewMessage(canbus.TopicTx, m, false))
		}
	}
}

// -----------------------------------------------------------------------------
// Wire format
// -----------------------------------------------------------------------------

type wireFrame struct {
	ID   uint32 `json:"id"`
	Ext  bool   `json:"ext"`
	RTR  bool   `json:"rtr"`
	DLC  *uint8 `json:"dlc,omitempty"`
	Data string `json:"data"` // hex
}

var errBadFrame = errors.New("bridge: bad frame")

// EncodeFrame renders m as {"id","ext","rtr","dlc","data"}. Remote
// frames carry no data.
func EncodeFrame(m canmsg.Message) ([]byte, error) {
	dlc := m.DLC()
	w := wireFrame{ID: m.ID(), Ext: m.Extended(), RTR: m.RTR(), DLC: &dlc}
	if !m.RTR() {
		w.Data = strings.ToUpper(hex.EncodeToString(m.Payload()))
	}
	return json.Marshal(w)
}

// DecodeFrame parses the JSON form. A missing dlc defaults to the data
// length.
func DecodeFrame(p []byte) (canmsg.Message, error) {
	var w wireFrame
	if err := json.Unmarshal(p, &w); err != nil {
		return canmsg.Message{}, err
	}
	data, err := hex.DecodeString(strings.ReplaceAll(w.Data, " ", ""))
	if err != nil {
		return canmsg.Message{}, fmt.Errorf("%w: data: %v", errBadFrame, err)
	}
	if len(data) > canmsg.MaxDataLen {
		return canmsg.Message{}, fmt.Errorf("%w: %d data bytes", errBadFrame, len(data))
	}
	limit := canmsg.MaskSFF
	if w.Ext {
		limit = canmsg.MaskEFF
	}
	if w.ID > limit {
		return canmsg.Message{}, fmt.Errorf("%w: id %#x out of range", errBadFrame, w.ID)
	}
	kind := canmsg.Standard
	if w.Ext {
		kind = canmsg.Extended
	}
	m := canmsg.New(w.ID, kind, data...)
	if w.DLC != nil {
		if *w.DLC > canmsg.MaxDataLen {
			return canmsg.Message{}, fmt.Errorf("%w: dlc %d", errBadFrame, *w.DLC)
		}
		m.SetDLC(*w.DLC)
	}
	m.SetRTR(w.RTR)
	return m, nil
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var m map[string]any
	switch v := p.(type) {
	case Config:
		return normalise(v)
	case []byte:
		if err := json.Unmarshal(v, &m); err != nil {
			return Config{}, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return Config{}, err
		}
	case map[string]any:
		m = v
	default:
		return Config{}, fmt.Errorf("unsupported config payload type: %T", p)
	}
	cfg := Config{
		Enabled:  true,
		Broker:   str(m["broker"]),
		ClientID: str(m["client_id"]),
		Prefix:   str(m["prefix"]),
		Username: str(m["username"]),
		Password: str(m["password"]),
	}
	switch v := m["enabled"].(type) {
	case bool:
		cfg.Enabled = v
	case string:
		cfg.Enabled = v == "true" || v == "1" || v == "yes" || v == "on"
	}
	return normalise(cfg)
}

func normalise(cfg Config) (Config, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "canhal"
	}
	cfg.Prefix = strings.TrimSuffix(cfg.Prefix, "/")
	if cfg.ClientID == "" {
		cfg.ClientID = "canhal"
	}
	if cfg.Enabled && cfg.Broker == "" {
		return cfg, errors.New("broker not set")
	}
	return cfg, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  timex.NowMs(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	msg := s.conn.NewMessage(s.stateTopic, payload, true)
	s.conn.Publish(msg)
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
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
