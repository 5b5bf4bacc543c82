// Package metrics exposes Prometheus counters for structuring runs.
//
// A run is a batch job, so metrics are written once to a node-exporter
// textfile rather than served.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "restruct"

// Function outcomes.
const (
	OutcomeStructured = "structured"
	OutcomeResidual   = "residual"
	OutcomeFailed     = "failed"
)

// Metrics holds the collectors of one run. A nil *Metrics records nothing.
type Metrics struct {
	// FunctionsTotal counts reduced functions by outcome.
	FunctionsTotal *prometheus.CounterVec
	// PatternsTotal counts pattern applications by pattern name.
	PatternsTotal *prometheus.CounterVec
	// DuplicatedTotal counts return tails copied to unblock reduction.
	DuplicatedTotal prometheus.Counter
	// Steps is the distribution of pattern applications per function.
	Steps prometheus.Histogram
	// Duration is the wall time spent reducing one function.
	Duration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FunctionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "functions_total",
			Help:      "Functions processed, by outcome.",
		}, []string{"outcome"}),
		PatternsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_applied_total",
			Help:      "Structural pattern applications, by pattern.",
		}, []string{"pattern"}),
		DuplicatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tails_duplicated_total",
			Help:      "Return tails duplicated to unblock reduction.",
		}),
		Steps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reduction_steps",
			Help:      "Pattern applications per function.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reduction_seconds",
			Help:      "Time spent reducing one function.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
}

// ObserveFunction records the outcome of one function.
func (m *Metrics) ObserveFunction(outcome string, steps int, applied map[string]int, duplicated int, d time.Duration) {
	if m == nil {
		return
	}
	m.FunctionsTotal.WithLabelValues(outcome).Inc()
	for name, n := range applied {
		m.PatternsTotal.WithLabelValues(name).Add(float64(n))
	}
	m.DuplicatedTotal.Add(float64(duplicated))
	m.Steps.Observe(float64(steps))
	m.Duration.Observe(d.Seconds())
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
