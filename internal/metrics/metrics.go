// Package metrics holds the Prometheus collectors of the triage service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vetbox"

// Metrics groups the service collectors.  A nil *Metrics is valid and
// records nothing, so components can run without instrumentation.
type Metrics struct {
	turns          *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	oracleCalls    *prometheus.CounterVec
	extractErrors  prometheus.Counter
	activeSessions prometheus.Gauge
	rulesLoaded    prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: state (collecting, matched, exhausted)
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "turns_total",
			Help:      "Conversation turns by resulting session state",
		}, []string{"state"}),

		turnDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "turn_duration_seconds",
			Help:      "Time to process one conversation turn, LLM calls included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"state"}),

		// Labels: result (match, no_match, error)
		oracleCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "oracle_calls_total",
			Help:      "Semantic-equivalence oracle calls by result",
		}, []string{"result"}),

		extractErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "extraction_errors_total",
			Help:      "Answers whose extraction failed and were not merged",
		}),

		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Sessions currently held in memory",
		}),

		rulesLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "loaded",
			Help:      "Rules in the active rule base",
		}),
	}
}

// ObserveTurn records one processed turn.
func (m *Metrics) ObserveTurn(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(state).Inc()
	m.turnDuration.WithLabelValues(state).Observe(d.Seconds())
}

// ObserveOracle records an oracle result: "match", "no_match" or "error".
func (m *Metrics) ObserveOracle(result string) {
	if m == nil {
		return
	}
	m.oracleCalls.WithLabelValues(result).Inc()
}

// ExtractionFailed counts an answer that could not be extracted.
func (m *Metrics) ExtractionFailed() {
	if m == nil {
		return
	}
	m.extractErrors.Inc()
}

// SetActiveSessions reports the number of live sessions.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// SetRulesLoaded reports the size of the rule base.
func (m *Metrics) SetRulesLoaded(n int) {
	if m == nil {
		return
	}
	m.rulesLoaded.Set(float64(n))
}
