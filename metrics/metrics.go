// Package metrics exports connection traffic as Prometheus metrics.
package metrics

import (
	"github.com/ggoodman/vppcall-go/internal/dispatch"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vppcall"

// Metrics records calls and notifications of every connection it is given
// to. Install it with vppcall.WithObserver.
type Metrics struct {
	callsSent     *prometheus.CounterVec
	callsResolved *prometheus.CounterVec
	pending       prometheus.Gauge
	notifications *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		callsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_sent_total",
			Help:      "Requests handed to the transport, by request name.",
		}, []string{"request"}),
		callsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_resolved_total",
			Help:      "Calls resolved, by request name and outcome.",
		}, []string{"request", "outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_pending",
			Help:      "Calls awaiting a reply.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications received, by name and whether a subscriber got them.",
		}, []string{"notification", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.callsSent, m.callsResolved, m.pending, m.notifications)
	}
	return m
}

func (m *Metrics) CallSent(request string) {
	m.callsSent.WithLabelValues(request).Inc()
	m.pending.Inc()
}

func (m *Metrics) CallResolved(request string, outcome dispatch.Outcome) {
	m.callsResolved.WithLabelValues(request, string(outcome)).Inc()
	m.pending.Dec()
}

func (m *Metrics) NotificationDelivered(name string) {
	m.notifications.WithLabelValues(name, "delivered").Inc()
}

func (m *Metrics) NotificationDropped(name string) {
	m.notifications.WithLabelValues(name, "dropped").Inc()
}

var _ dispatch.Observer = (*Metrics)(nil)
