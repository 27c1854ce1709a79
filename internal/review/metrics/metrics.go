package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the manual review queue.
type Metrics struct {
	// Reviews opened by priority and origin ("escalation" or "follow_up")
	Opened *prometheus.CounterVec

	// Assignment attempts by outcome ("won" or "lost")
	Assignments *prometheus.CounterVec

	// Decisions submitted
	Decisions *prometheus.CounterVec

	// Time from creation to decision
	TimeToDecision prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Opened: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certverify_reviews_opened_total",
			Help: "Manual reviews opened by priority and origin",
		}, []string{"priority", "origin"}),

		Assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certverify_review_assignments_total",
			Help: "Review assignment attempts by outcome",
		}, []string{"outcome"}),

		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certverify_review_decisions_total",
			Help: "Review decisions by decision",
		}, []string{"decision"}),

		TimeToDecision: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certverify_review_time_to_decision_seconds",
			Help:    "Time from review creation to decision",
			Buckets: []float64{60, 300, 900, 3600, 4 * 3600, 24 * 3600, 72 * 3600},
		}),
	}
}

func (m *Metrics) IncrementOpened(priority, origin string) {
	if m != nil {
		m.Opened.WithLabelValues(priority, origin).Inc()
	}
}

func (m *Metrics) IncrementAssignment(won bool) {
	if m == nil {
		return
	}
	outcome := "lost"
	if won {
		outcome = "won"
	}
	m.Assignments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDecision(decision string, seconds float64) {
	if m != nil {
		m.Decisions.WithLabelValues(decision).Inc()
		m.TimeToDecision.Observe(seconds)
	}
}
