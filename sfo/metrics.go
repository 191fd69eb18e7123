package sfo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for merge rounds.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	mergeTotal      *prometheus.CounterVec
	mergeDuration   prometheus.Histogram
	selectedTotal   prometheus.Counter
	selectedGain    prometheus.Histogram
	roundCandidates prometheus.Histogram
	modelDimensions prometheus.Gauge
}

// NewMetrics registers the merge metrics with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		mergeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sfo_merge_total",
			Help: "Merge steps by result (ok or the error kind)",
		}, []string{"result"}),
		mergeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sfo_merge_duration_seconds",
			Help:    "Merge step duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}),
		selectedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "sfo_selected_dimensions_total",
			Help: "Dimensions added to the base model",
		}),
		selectedGain: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sfo_selected_gain",
			Help:    "Log-likelihood gain of each selected dimension",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		roundCandidates: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sfo_round_candidates",
			Help:    "Candidates delivered to a merge step",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		modelDimensions: f.NewGauge(prometheus.GaugeOpts{
			Name: "sfo_model_dimensions",
			Help: "Used dimensions in the most recently merged base model",
		}),
	}
}

func (m *Metrics) observeMerge(result string, started time.Time, candidates int) {
	if m == nil {
		return
	}
	m.mergeTotal.WithLabelValues(result).Inc()
	m.mergeDuration.Observe(time.Since(started).Seconds())
	m.roundCandidates.Observe(float64(candidates))
}

func (m *Metrics) observeSelected(gain float64) {
	if m == nil {
		return
	}
	m.selectedTotal.Inc()
	m.selectedGain.Observe(gain)
}

func (m *Metrics) setModelSize(n int) {
	if m == nil {
		return
	}
	m.modelDimensions.Set(float64(n))
}
