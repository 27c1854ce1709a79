package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification state machine.
type Metrics struct {
	// Verifications started by type and trigger ("start" or "retry")
	Started *prometheus.CounterVec

	// Final outcomes by type, status and result
	Outcome *prometheus.CounterVec

	// Step duration by step type and final step status
	StepDuration *prometheus.HistogramVec

	// Verifications currently running
	Active prometheus.Gauge

	// Failed hand-offs to the review queue
	EscalationFailures prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Started: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certverify_verifications_started_total",
			Help: "Verifications started by type and trigger",
		}, []string{"verification_type", "trigger"}),

		Outcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certverify_verification_outcomes_total",
			Help: "Verification outcomes by type, status and result",
		}, []string{"verification_type", "status", "result"}),

		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certverify_verification_step_duration_seconds",
			Help:    "Duration of evidence collection steps",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"step_type", "status"}),

		Active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "certverify_verifications_active",
			Help: "Verifications currently collecting evidence",
		}),

		EscalationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "certverify_verification_escalation_failures_total",
			Help: "Escalations to the manual review queue that failed",
		}),
	}
}

func (m *Metrics) IncrementStarted(vtype, trigger string) {
	if m != nil {
		m.Started.WithLabelValues(vtype, trigger).Inc()
	}
}

func (m *Metrics) IncrementOutcome(vtype, status, result string) {
	if m != nil {
		m.Outcome.WithLabelValues(vtype, status, result).Inc()
	}
}

func (m *Metrics) ObserveStep(stepType, status string, d time.Duration) {
	if m != nil {
		m.StepDuration.WithLabelValues(stepType, status).Observe(d.Seconds())
	}
}

func (m *Metrics) RunStarted() {
	if m != nil {
		m.Active.Inc()
	}
}

func (m *Metrics) RunFinished() {
	if m != nil {
		m.Active.Dec()
	}
}

func (m *Metrics) IncrementEscalationFailure() {
	if m != nil {
		m.EscalationFailures.Inc()
	}
}
