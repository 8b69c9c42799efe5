package irrigation_controller

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	readings      *prometheus.CounterVec
	commands      *prometheus.CounterVec
	observers     prometheus.Gauge
	observerDrops prometheus.Counter
	breakerState  *prometheus.GaugeVec
}

// NewMetrics registers the collectors on reg. A nil registry disables metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "controller",
			Name:      "readings_total",
			Help:      "Telemetry messages by outcome.",
		}, []string{"result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "controller",
			Name:      "commands_total",
			Help:      "Actuation commands issued.",
		}, []string{"source", "state", "delivered"}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "irrigation",
			Subsystem: "controller",
			Name:      "live_observers",
			Help:      "Live snapshot observers currently registered.",
		}),
		observerDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "controller",
			Name:      "observer_drops_total",
			Help:      "Observers removed after a failed delivery.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "irrigation",
			Subsystem: "controller",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"name"}),
	}
	reg.MustRegister(m.readings, m.commands, m.observers, m.observerDrops, m.breakerState)
	return m
}

func (m *Metrics) reading(result string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(result).Inc()
}

func (m *Metrics) command(source, state string, delivered bool) {
	if m == nil {
		return
	}
	d := "false"
	if delivered {
		d = "true"
	}
	m.commands.WithLabelValues(source, state, d).Inc()
}

func (m *Metrics) observerAdded() {
	if m == nil {
		return
	}
	m.observers.Inc()
}

func (m *Metrics) observerRemoved(dropped bool) {
	if m == nil {
		return
	}
	m.observers.Dec()
	if dropped {
		m.observerDrops.Inc()
	}
}

// BreakerState exports a gobreaker state by name.
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}
