// Package metrics exposes Prometheus instruments for classification traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ticketclassifier"

var confidenceBuckets = []float64{0.1, 0.2, 0.25, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}

type Metrics struct {
	classifications *prometheus.CounterVec
	confidence      *prometheus.HistogramVec
	duration        *prometheus.HistogramVec
	llmFailures     *prometheus.CounterVec
	patternErrors   *prometheus.CounterVec
	corrections     *prometheus.CounterVec
}

// NewMetrics registers every instrument with reg. Use prometheus.NewRegistry()
// in tests so repeated construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Tickets classified, by resulting category and method.",
		}, []string{"category", "method"}),
		confidence: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_confidence",
			Help:      "Confidence of returned classifications.",
			Buckets:   confidenceBuckets,
		}, []string{"method"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_duration_seconds",
			Help:      "Time spent classifying one ticket.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"method"}),
		llmFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_failures_total",
			Help:      "LLM classifications that fell back to the default category because of an error.",
		}, []string{"provider"}),
		patternErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_errors_total",
			Help:      "Category patterns skipped because they could not be evaluated.",
		}, []string{"category"}),
		corrections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Classifications corrected by a person, by original and corrected category.",
		}, []string{"from", "to"}),
	}
}

// ObserveClassification is safe to call on a nil *Metrics.
func (m *Metrics) ObserveClassification(category, method string, confidence float64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(category, method).Inc()
	m.confidence.WithLabelValues(method).Observe(confidence)
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) LLMFailure(provider string) {
	if m == nil {
		return
	}
	m.llmFailures.WithLabelValues(provider).Inc()
}

func (m *Metrics) PatternError(category string) {
	if m == nil {
		return
	}
	m.patternErrors.WithLabelValues(category).Inc()
}

func (m *Metrics) Correction(from, to string) {
	if m == nil {
		return
	}
	m.corrections.WithLabelValues(from, to).Inc()
}
