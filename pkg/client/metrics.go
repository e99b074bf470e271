package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/omochice/fcchat/pkg/protocol"
)

// Metrics holds the Prometheus collectors shared by every Client that is
// given it. A nil *Metrics records nothing.
type Metrics struct {
	packetsReceived *prometheus.CounterVec
	commandsSent    *prometheus.CounterVec
	connects        prometheus.Counter
	disconnects     *prometheus.CounterVec
	framingErrors   prometheus.Counter
	activeConns     prometheus.Gauge
	reconnectDelay  prometheus.Gauge
	requestDuration *prometheus.HistogramVec
}

// NewMetrics registers the client collectors with reg. A nil reg means
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fcchat",
			Name:      "packets_received_total",
			Help:      "Total number of packets decoded from chat servers",
		}, []string{"fctype"}),

		commandsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fcchat",
			Name:      "commands_sent_total",
			Help:      "Total number of commands sent to chat servers",
		}, []string{"fctype"}),

		connects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fcchat",
			Name:      "connects_total",
			Help:      "Total number of established chat server connections",
		}),

		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fcchat",
			Name:      "disconnects_total",
			Help:      "Total number of lost or closed chat server connections",
		}, []string{"kind"}),

		framingErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fcchat",
			Name:      "framing_errors_total",
			Help:      "Total number of connections dropped for bad framing",
		}),

		activeConns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fcchat",
			Name:      "active_connections",
			Help:      "Number of active chat server connections",
		}),

		reconnectDelay: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fcchat",
			Name:      "reconnect_delay_seconds",
			Help:      "Delay before the most recently scheduled reconnect",
		}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fcchat",
			Name:      "request_duration_seconds",
			Help:      "Duration of correlated requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"request", "outcome"}),
	}
}

func (m *Metrics) packet(t protocol.FCType) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) command(t protocol.FCType) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) connected() {
	if m == nil {
		return
	}
	m.connects.Inc()
	m.activeConns.Inc()
}

func (m *Metrics) disconnected(wasActive, manual bool, delay time.Duration) {
	if m == nil {
		return
	}
	if wasActive {
		m.activeConns.Dec()
	}
	if manual {
		m.disconnects.WithLabelValues("manual").Inc()
		return
	}
	m.disconnects.WithLabelValues("lost").Inc()
	m.reconnectDelay.Set(delay.Seconds())
}

func (m *Metrics) framingError() {
	if m == nil {
		return
	}
	m.framingErrors.Inc()
}

func (m *Metrics) request(name string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requestDuration.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
}
