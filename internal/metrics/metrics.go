// Package metrics exposes Prometheus collectors for relay sessions and
// routing outcomes.
//
// A nil *Collector is a valid no-op receiver.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relay"

// Collector implements relay.Observer on top of Prometheus metrics.
type Collector struct {
	SessionsActive     prometheus.Gauge
	SessionsTotal      prometheus.Counter
	MessagesReceived   prometheus.Counter
	MessagesDelivered  prometheus.Counter
	MessagesDropped    *prometheus.CounterVec
	HandshakesRejected *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently open.",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions opened since start.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound frames read from sessions.",
		}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Messages handed to a peer's outbox.",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound frames that were not delivered, by reason.",
		}, []string{"reason"}),
		HandshakesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_rejected_total",
			Help:      "Upgrade requests refused before a session was created, by reason.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(
			c.SessionsActive,
			c.SessionsTotal,
			c.MessagesReceived,
			c.MessagesDelivered,
			c.MessagesDropped,
			c.HandshakesRejected,
		)
	}
	return c
}

func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.SessionsActive.Inc()
	c.SessionsTotal.Inc()
}

func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.SessionsActive.Dec()
}

func (c *Collector) MessageReceived() {
	if c == nil {
		return
	}
	c.MessagesReceived.Inc()
}

func (c *Collector) MessageDelivered() {
	if c == nil {
		return
	}
	c.MessagesDelivered.Inc()
}

func (c *Collector) MessageDropped(reason string) {
	if c == nil {
		return
	}
	c.MessagesDropped.WithLabelValues(reason).Inc()
}

// HandshakeRejected counts an upgrade refused for reason.
func (c *Collector) HandshakeRejected(reason string) {
	if c == nil {
		return
	}
	c.HandshakesRejected.WithLabelValues(reason).Inc()
}
