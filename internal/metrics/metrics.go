package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "signalbox"

// Metrics groups the service's Prometheus collectors.
type Metrics struct {
	Actions        *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	Expired        prometheus.Counter
	RateLimited    prometheus.Counter
	WSConnections  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Signaling actions handled, by action and outcome.",
		}, []string{"action", "outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Mailboxes currently held by the store.",
		}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_sessions_total",
			Help:      "Mailboxes removed after idling past the TTL.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-caller rate limit.",
		}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open signaling websocket connections.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Actions, m.ActiveSessions, m.Expired, m.RateLimited, m.WSConnections)
	}
	return m
}

// ObserveAction counts one handled action. A nil receiver is a no-op so
// callers can run without metrics.
func (m *Metrics) ObserveAction(action, outcome string) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) AddExpired(n int) {
	if m == nil {
		return
	}
	m.Expired.Add(float64(n))
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

func (m *Metrics) WSOpened() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

func (m *Metrics) WSClosed() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
