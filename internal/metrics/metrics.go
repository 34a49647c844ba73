// Package metrics exposes Prometheus instruments for the triage engine. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "triage"

// Metrics holds the engine's counters, gauges and histograms.
type Metrics struct {
	decisions      *prometheus.CounterVec
	overrides      *prometheus.CounterVec
	degraded       *prometheus.CounterVec
	turnDuration   prometheus.Histogram
	graphReloads   *prometheus.CounterVec
	activeSessions prometheus.Gauge
	auditErrors    *prometheus.CounterVec
}

// New creates and registers the instruments. A nil registerer uses the
// default one.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "decisions_total",
			Help:      "Decisions emitted, by next state, risk level and override flag",
		}, []string{"state", "risk_level", "override"}),
		overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "overrides_total",
			Help:      "Crisis overrides, by triggering classifier",
		}, []string{"trigger"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "degraded_turns_total",
			Help:      "Turns decided in degraded mode, by reason",
		}, []string{"reason"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end latency of one turn decision",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}),
		graphReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "graph_reloads_total",
			Help:      "State graph reload attempts, by result",
		}, []string{"result"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "known_sessions",
			Help:      "Sessions held in the store, active and idle",
		}),
		auditErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "errors_total",
			Help:      "Audit records a sink failed to write",
		}, []string{"sink"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.decisions, m.overrides, m.degraded, m.turnDuration,
		m.graphReloads, m.activeSessions, m.auditErrors)
	return m
}

func (m *Metrics) ObserveDecision(state, riskLevel string, override bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(state, riskLevel, strconv.FormatBool(override)).Inc()
}

func (m *Metrics) ObserveOverride(trigger string) {
	if m == nil {
		return
	}
	m.overrides.WithLabelValues(trigger).Inc()
}

func (m *Metrics) ObserveDegraded(reason string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveTurnDuration(seconds float64) {
	if m == nil {
		return
	}
	m.turnDuration.Observe(seconds)
}

func (m *Metrics) ObserveGraphReload(result string) {
	if m == nil {
		return
	}
	m.graphReloads.WithLabelValues(result).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) ObserveAuditError(sink string) {
	if m == nil {
		return
	}
	m.auditErrors.WithLabelValues(sink).Inc()
}
