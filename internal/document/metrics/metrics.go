package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for document ingestion.
type Metrics struct {
	// Uploads accepted by document type
	Uploads *prometheus.CounterVec

	// Terminal processing outcomes by document type and status
	ProcessingOutcome *prometheus.CounterVec

	// Extractor call latency
	ExtractionLatency prometheus.Histogram

	// Cross-document match outcomes by kind ("pan_aadhaar", "signature") and status
	MatchOutcome *prometheus.CounterVec
}

// New registers document metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certverify_document_uploads_total",
			Help: "Documents accepted for processing by type",
		}, []string{"document_type"}),

		ProcessingOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certverify_document_processing_total",
			Help: "Terminal document processing outcomes by type and status",
		}, []string{"document_type", "status"}),

		ExtractionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certverify_document_extraction_duration_seconds",
			Help:    "Duration of extractor calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		MatchOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certverify_document_match_total",
			Help: "Cross-document match outcomes by kind and status",
		}, []string{"kind", "status"}),
	}
}

func (m *Metrics) IncrementUpload(docType string) {
	if m != nil {
		m.Uploads.WithLabelValues(docType).Inc()
	}
}

func (m *Metrics) IncrementOutcome(docType, status string) {
	if m != nil {
		m.ProcessingOutcome.WithLabelValues(docType, status).Inc()
	}
}

func (m *Metrics) ObserveExtraction(d time.Duration) {
	if m != nil {
		m.ExtractionLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementMatch(kind, status string) {
	if m != nil {
		m.MatchOutcome.WithLabelValues(kind, status).Inc()
	}
}
