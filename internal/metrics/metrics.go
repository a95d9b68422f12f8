// Package metrics exposes Prometheus collectors for the signaling core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "converse"

type Metrics struct {
	sessionsCreated prometheus.Counter
	callsEnded      *prometheus.CounterVec
	matchRequests   *prometheus.CounterVec
	relayed         *prometheus.CounterVec
	relayDropped    *prometheus.CounterVec
	waitExpired     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Call sessions formed by matchmaking.",
		}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_ended_total",
			Help:      "Call sessions torn down, by reason.",
		}, []string{"reason"}),
		matchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_requests_total",
			Help:      "Match requests, by outcome.",
		}, []string{"outcome"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_relayed_total",
			Help:      "Signaling messages delivered to a partner, by kind.",
		}, []string{"kind"}),
		relayDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_dropped_total",
			Help:      "Signaling messages not delivered, by reason.",
		}, []string{"reason"}),
		waitExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_expired_total",
			Help:      "Waiting tickets dropped by the wait timeout.",
		}),
	}
	reg.MustRegister(m.sessionsCreated, m.callsEnded, m.matchRequests, m.relayed, m.relayDropped, m.waitExpired)
	return m
}

// ObserveTables exports the live table sizes as gauges.
func (m *Metrics) ObserveTables(reg prometheus.Registerer, online, waiting, sessions func() int) {
	gauge := func(name, help string, f func() int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(f()) })
	}
	reg.MustRegister(
		gauge("presence_online", "Registered connections.", online),
		gauge("match_waiting", "Connections holding a waiting ticket.", waiting),
		gauge("sessions_active", "Live call sessions.", sessions),
	)
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

func (m *Metrics) CallEnded(reason string) {
	if m == nil {
		return
	}
	m.callsEnded.WithLabelValues(reason).Inc()
}

func (m *Metrics) MatchRequested(outcome string) {
	if m == nil {
		return
	}
	m.matchRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Relayed(kind string) {
	if m == nil {
		return
	}
	m.relayed.WithLabelValues(kind).Inc()
}

func (m *Metrics) RelayDropped(reason string) {
	if m == nil {
		return
	}
	m.relayDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) WaitExpired(n int) {
	if m == nil || n == 0 {
		return
	}
	m.waitExpired.Add(float64(n))
}
