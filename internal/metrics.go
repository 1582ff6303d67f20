package internal

import (
	"time"

	"github.com/lychee-technology/sigmaql"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
)

// ValidationMetrics records validation outcomes. A nil *ValidationMetrics is
// a valid no-op recorder.
type ValidationMetrics struct {
	validations *prometheus.CounterVec
	duration    prometheus.Histogram
	depth       prometheus.Histogram
}

// NewValidationMetrics creates the collectors and registers them on reg.
func NewValidationMetrics(namespace string, reg prometheus.Registerer) (*ValidationMetrics, error) {
	if namespace == "" {
		namespace = "sigmaql"
	}

	m := &ValidationMetrics{
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Query validations by outcome and error kind.",
			},
			[]string{"outcome", "kind"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Time spent validating one query tree.",
			// Validation is in-memory; most calls finish well under a millisecond.
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		depth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "include_depth",
			Help:      "Include nesting depth of accepted queries.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 16, 32},
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.validations, m.duration, m.depth} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ObserveAccepted records a successful validation.
func (m *ValidationMetrics) ObserveAccepted(elapsed time.Duration, depth int) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcomeAccepted, "").Inc()
	m.duration.Observe(elapsed.Seconds())
	m.depth.Observe(float64(depth))
}

// ObserveRejected records a failed validation labelled by its error kind.
func (m *ValidationMetrics) ObserveRejected(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcomeRejected, string(sigmaql.KindOf(err))).Inc()
	m.duration.Observe(elapsed.Seconds())
}
