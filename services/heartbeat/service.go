// Package heartbeat publishes a retained liveness record with the latest
// CAN health sample folded in.
package heartbeat

import (
	"context"
	"time"

	"canhal-go/bus"
	"canhal-go/services/canbus"
	"canhal-go/x/timex"

	log "github.com/sirupsen/logrus"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	TopicHeartbeat       = bus.T("heartbeat")
)

const defaultInterval = 10 * time.Second

type Service struct {
	Interval time.Duration

	started time.Time
	health  map[string]any
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	healthSub := conn.Subscribe(canbus.TopicHealth)
	defer conn.Unsubscribe(healthSub)

	if s.Interval <= 0 {
		s.Interval = defaultInterval
	}
	s.started = time.Now()
	tick := time.NewTicker(s.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("[HEARTBEAT] stopping")
			return
		case <-tick.C:
			s.beat(conn)
		case msg := <-healthSub.Channel():
			if h, ok := msg.Payload.(map[string]any); ok {
				s.health = h
			}
		case msg := <-cfgSub.Channel():
			if d, ok := interval(msg.Payload); ok {
				s.Interval = d
				tick.Reset(d)
				log.Infof("[HEARTBEAT] interval set to %s", d)
			}
		}
	}
}

func (s *Service) beat(conn *bus.Connection) {
	p := map[string]any{
		"uptime_s": int64(time.Since(s.started) / time.Second),
		"ts_ms":    timex.NowMs(),
	}
	if s.health != nil {
		p["tec"] = s.health["tec"]
		p["rec"] = s.health["rec"]
		p["bus_off"] = s.health["bus_off"]
	}
	log.Debugf("[HEARTBEAT] %v", p)
	conn.Publish(conn.NewMessage(TopicHeartbeat, p, true))
}

// interval accepts {"interval": "30s"} from the config service or a number
// of seconds from JSON.
func interval(p any) (time.Duration, bool) {
	m, ok := p.(map[string]any)
	if !ok {
		return 0, false
	}
	var d time.Duration
	switch v := m["interval"].(type) {
	case string:
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return 0, false
		}
	case float64:
		d = time.Duration(v * float64(time.Second))
	default:
		return 0, false
	}
	return d, d > 0
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
