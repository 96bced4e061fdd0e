// Package metrics exposes prometheus instruments for the chat core. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shelfx_chat"

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	connections  prometheus.Gauge
	onlineUsers  prometheus.Gauge
	messagesSent prometheus.Counter
	sendFailures *prometheus.CounterVec
	pushFailures prometheus.Counter
	unreadBumps  prometheus.Counter
	joins        *prometheus.CounterVec
}

// New builds the collectors and registers them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live websocket connections.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with at least one live connection.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages persisted and dispatched.",
		}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Rejected or failed sends by error code.",
		}, []string{"code"}),
		pushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_failures_total",
			Help:      "Pushes to a single connection that did not make it into its queue.",
		}),
		unreadBumps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unread_increments_total",
			Help:      "Unread counter increments.",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Join attempts by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.connections,
		m.onlineUsers,
		m.messagesSent,
		m.sendFailures,
		m.pushFailures,
		m.unreadBumps,
		m.joins,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) UserOnline() {
	if m != nil {
		m.onlineUsers.Inc()
	}
}

func (m *Metrics) UserOffline() {
	if m != nil {
		m.onlineUsers.Dec()
	}
}

func (m *Metrics) MessageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *Metrics) SendFailed(code string) {
	if m != nil {
		m.sendFailures.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) PushFailed() {
	if m != nil {
		m.pushFailures.Inc()
	}
}

func (m *Metrics) UnreadIncremented() {
	if m != nil {
		m.unreadBumps.Inc()
	}
}

func (m *Metrics) Joined(outcome string) {
	if m != nil {
		m.joins.WithLabelValues(outcome).Inc()
	}
}
