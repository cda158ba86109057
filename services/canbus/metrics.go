package canbus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Prometheus collectors
var (
	RxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcp2515_rx_frames_total",
		Help: "Total CAN frames read from the controller.",
	})
	TxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcp2515_tx_frames_total",
		Help: "Total CAN frames queued for transmission.",
	})
	TxBusy = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcp2515_tx_busy_total",
		Help: "Send attempts that found all three transmit buffers pending.",
	})
	TxFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcp2515_tx_failures_total",
		Help: "Send attempts rejected or aborted by the controller.",
	})
	RxOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcp2515_rx_overflows_total",
		Help: "Receive buffer overflows reported in EFLG.",
	})
	Resets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcp2515_resets_total",
		Help: "Controller reset attempts.",
	})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp2515_errors_total",
		Help: "SPI or controller errors by operation.",
	}, []string{"where"})
	TEC = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mcp2515_tec",
		Help: "Transmit error counter.",
	})
	REC = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mcp2515_rec",
		Help: "Receive error counter.",
	})
	BusOff = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mcp2515_bus_off",
		Help: "1 while the controller reports bus-off.",
	})
)

// NewHandler serves /metrics and a /ready probe backed by ready.
func NewHandler(ready func() bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	return mux
}

// StartHTTP serves NewHandler(ready) on addr in the background.
func StartHTTP(addr string, ready func() bool) *http.Server {
	srv := &http.Server{Addr: addr, Handler: NewHandler(ready)}
	go func() {
		log.Infof("[METRICS] listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("[METRICS] http: %v", err)
		}
	}()
	return srv
}
