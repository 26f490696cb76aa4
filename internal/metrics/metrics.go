// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the engine's collectors.
type Metrics struct {
	connections prometheus.Gauge
	answers     *prometheus.CounterVec
	settlements *prometheus.CounterVec
	raceLosses  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quizroom",
			Name:      "connections",
			Help:      "Live connections attached to a room.",
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizroom",
			Name:      "answers_total",
			Help:      "Accepted answer submissions.",
		}, []string{"correct"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizroom",
			Name:      "settlements_total",
			Help:      "Rooms settled, by trigger.",
		}, []string{"reason"}),
		raceLosses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizroom",
			Name:      "race_losses_total",
			Help:      "Conditional writes that found their work already done.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.connections, m.answers, m.settlements, m.raceLosses)
	return m
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) Answer(correct bool) {
	if m == nil {
		return
	}
	label := "false"
	if correct {
		label = "true"
	}
	m.answers.WithLabelValues(label).Inc()
}

func (m *Metrics) Settled(reason string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(reason).Inc()
}

func (m *Metrics) RaceLoss(op string) {
	if m == nil {
		return
	}
	m.raceLosses.WithLabelValues(op).Inc()
}
