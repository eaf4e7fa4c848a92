package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dealerline"

// Metrics holds the Prometheus collectors for the call center. All methods
// are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	callsStarted  *prometheus.CounterVec
	callsEnded    *prometheus.CounterVec
	activeCalls   prometheus.Gauge
	takeovers     *prometheus.CounterVec
	turns         *prometheus.CounterVec
	turnDuration  prometheus.Histogram
	phaseFailures *prometheus.CounterVec
	actions       *prometheus.CounterVec
	tokens        *prometheus.CounterVec
	confidence    prometheus.Histogram
	finalizeFails prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry together with the
// Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		callsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "calls_started_total",
			Help: "Calls started, by direction.",
		}, []string{"direction"}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "calls_ended_total",
			Help: "Calls ended, by who handled them.",
		}, []string{"handled_by"}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_calls",
			Help: "Calls currently live.",
		}),
		takeovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "takeovers_total",
			Help: "Human takeovers, by source (manual, action, policy).",
		}, []string{"source"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "turns_total",
			Help: "Agent turns, by status (ok, degraded).",
		}, []string{"status"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "agent", Name: "turn_duration_seconds",
			Help:    "Wall time of one agent turn.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}),
		phaseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "phase_failures_total",
			Help: "Model call attempts that failed, by turn phase.",
		}, []string{"phase"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "actions_total",
			Help: "Business actions dispatched, by action and outcome.",
		}, []string{"action", "status"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "tokens_total",
			Help: "Model tokens consumed, by type.",
		}, []string{"type"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "agent", Name: "confidence",
			Help:    "Distribution of per-turn confidence scores.",
			Buckets: []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
		finalizeFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "finalize_failures_total",
			Help: "End-of-call persistence failures.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.callsStarted, m.callsEnded, m.activeCalls, m.takeovers,
		m.turns, m.turnDuration, m.phaseFailures, m.actions,
		m.tokens, m.confidence, m.finalizeFails,
	)
	return m
}

// CallStarted counts a new call.
func (m *Metrics) CallStarted(direction string) {
	if m == nil {
		return
	}
	m.callsStarted.WithLabelValues(direction).Inc()
	m.activeCalls.Inc()
}

// CallEnded counts a finished call.
func (m *Metrics) CallEnded(handledBy string) {
	if m == nil {
		return
	}
	m.callsEnded.WithLabelValues(handledBy).Inc()
	m.activeCalls.Dec()
}

// FinalizeFailed counts a failed end-of-call write.
func (m *Metrics) FinalizeFailed() {
	if m == nil {
		return
	}
	m.finalizeFails.Inc()
}

// Takeover counts a handoff to a human.
func (m *Metrics) Takeover(source string) {
	if m == nil {
		return
	}
	m.takeovers.WithLabelValues(source).Inc()
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(degraded bool, d time.Duration, confidence float64) {
	if m == nil {
		return
	}
	status := "ok"
	if degraded {
		status = "degraded"
	}
	m.turns.WithLabelValues(status).Inc()
	m.turnDuration.Observe(d.Seconds())
	m.confidence.Observe(confidence)
}

// PhaseFailed counts a failed model call attempt in phase.
func (m *Metrics) PhaseFailed(phase string) {
	if m == nil {
		return
	}
	m.phaseFailures.WithLabelValues(phase).Inc()
}

// RecordAction counts one dispatched action.
func (m *Metrics) RecordAction(action string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.actions.WithLabelValues(action, status).Inc()
}

// RecordTokens adds model token usage.
func (m *Metrics) RecordTokens(input, output int) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues("input").Add(float64(input))
	m.tokens.WithLabelValues("output").Add(float64(output))
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
