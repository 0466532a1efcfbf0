// Package metrics exposes Prometheus instruments for the verification pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Comparison outcomes
const (
	OutcomeMatched   = "matched"
	OutcomeUnmatched = "unmatched"
	OutcomeDegraded  = "degraded"
)

// Metrics holds all Prometheus metrics for the application.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	OracleComparisons   *prometheus.CounterVec
	OracleLatency       *prometheus.HistogramVec
	Verifications       *prometheus.CounterVec
	VerificationLatency prometheus.Histogram
	RecordWriteFailures prometheus.Counter
	Uploads             *prometheus.CounterVec
	UploadedBytes       prometheus.Counter
	CatalogAdds         *prometheus.CounterVec
	Registrations       *prometheus.CounterVec
	SupersededAttempts  prometheus.Counter
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OracleComparisons: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_oracle_comparisons_total",
			Help: "Total number of oracle comparisons, labeled by provider and outcome",
		}, []string{"provider", "outcome"}),
		OracleLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "identity_oracle_comparison_seconds",
			Help:    "Latency of single oracle comparisons in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"provider"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_verifications_total",
			Help: "Total number of completed verification attempts, labeled by status",
		}, []string{"status"}),
		VerificationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "identity_verification_seconds",
			Help:    "End-to-end latency of verification attempts in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		RecordWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_record_write_failures_total",
			Help: "Total number of verification records that could not be persisted",
		}),
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_uploads_total",
			Help: "Total number of content store uploads, labeled by result",
		}, []string{"result"}),
		UploadedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_uploaded_bytes_total",
			Help: "Total number of bytes stored in the content store",
		}),
		CatalogAdds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_catalog_images_added_total",
			Help: "Total number of reference images processed by batch uploads, labeled by result",
		}, []string{"result"}),
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_registrations_total",
			Help: "Total number of ledger registration attempts, labeled by result",
		}, []string{"result"}),
		SupersededAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_superseded_attempts_total",
			Help: "Total number of verification outcomes discarded because a newer attempt started",
		}),
	}
}

func (m *Metrics) ObserveComparison(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.OracleComparisons.WithLabelValues(provider, outcome).Inc()
	m.OracleLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) ObserveVerification(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(status).Inc()
	m.VerificationLatency.Observe(d.Seconds())
}

func (m *Metrics) RecordWriteFailed() {
	if m == nil {
		return
	}
	m.RecordWriteFailures.Inc()
}

func (m *Metrics) ObserveUpload(err error, size int64) {
	if m == nil {
		return
	}
	if err != nil {
		m.Uploads.WithLabelValues("failure").Inc()
		return
	}
	m.Uploads.WithLabelValues("success").Inc()
	if size > 0 {
		m.UploadedBytes.Add(float64(size))
	}
}

func (m *Metrics) ObserveCatalogAdd(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.CatalogAdds.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(result).Inc()
}

func (m *Metrics) AttemptSuperseded() {
	if m == nil {
		return
	}
	m.SupersededAttempts.Inc()
}
