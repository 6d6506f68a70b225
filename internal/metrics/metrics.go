// Package metrics exports worker activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mapwright/mapwright/internal/ledger"
)

const namespace = "mapwright"

// Metrics implements mapworker.Observer.
type Metrics struct {
	commands *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	updates  *prometheus.CounterVec
	changes  prometheus.Histogram
	saves    *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "commands_total",
			Help:      "Commands handled by the worker, by type and outcome.",
		}, []string{"type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "command_duration_seconds",
			Help:      "Time spent handling one command.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"type"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "updates_total",
			Help:      "Change sets applied to the map, by reason.",
		}, []string{"reason"}),
		changes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "changes_per_set",
			Help:      "Number of changes in each applied change set.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "saves_total",
			Help:      "Autosave attempts, by outcome.",
		}, []string{"outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.commands, m.latency, m.updates, m.changes, m.saves,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) CommandHandled(typ string, d time.Duration, err error) {
	m.commands.WithLabelValues(typ, outcome(err)).Inc()
	m.latency.WithLabelValues(typ).Observe(d.Seconds())
}

func (m *Metrics) MapUpdated(reason ledger.Reason, changes int) {
	m.updates.WithLabelValues(string(reason)).Inc()
	m.changes.Observe(float64(changes))
}

func (m *Metrics) SessionSaved(err error) {
	m.saves.WithLabelValues(outcome(err)).Inc()
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
