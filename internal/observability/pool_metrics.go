package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolMetrics tracks the candidate registry and breaker gate.
type PoolMetrics struct {
	tracked     prometheus.Gauge
	transitions *prometheus.CounterVec
	excluded    *prometheus.CounterVec
}

var (
	defaultPoolMetrics     *PoolMetrics
	defaultPoolMetricsOnce sync.Once
)

// NewPoolMetrics builds a PoolMetrics recorder using the default registry.
func NewPoolMetrics() *PoolMetrics {
	defaultPoolMetricsOnce.Do(func() {
		defaultPoolMetrics = newPoolMetrics(prometheus.DefaultRegisterer)
	})
	return defaultPoolMetrics
}

// NewPoolMetricsWithRegisterer allows tests to provide a dedicated registry.
func NewPoolMetricsWithRegisterer(reg prometheus.Registerer) *PoolMetrics {
	return newPoolMetrics(reg)
}

func newPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PoolMetrics{
		tracked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "candsel",
			Subsystem: "pool",
			Name:      "tracked_candidates",
			Help:      "Number of candidates with a stats record",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "candsel",
			Subsystem: "pool",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes by source and destination state",
		}, []string{"from", "to"}),
		excluded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "candsel",
			Subsystem: "pool",
			Name:      "breaker_exclusions_total",
			Help:      "Candidates left out of a round because their breaker was open",
		}, []string{"candidate"}),
	}
}

// SetTracked records the current registry size.
func (m *PoolMetrics) SetTracked(n int) {
	if m == nil || m.tracked == nil {
		return
	}
	m.tracked.Set(float64(n))
}

// RecordTransition counts one breaker state change.
func (m *PoolMetrics) RecordTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordExclusion counts a candidate skipped by the breaker gate.
func (m *PoolMetrics) RecordExclusion(candidate string) {
	if m == nil || m.excluded == nil {
		return
	}
	m.excluded.WithLabelValues(candidate).Inc()
}
