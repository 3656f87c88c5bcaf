package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultHit     = "hit"
	resultTierHit = "tier_hit"
	resultMiss    = "miss"
)

// Metrics counts cache activity. A nil *Metrics is a no-op.
type Metrics struct {
	lookups       *prometheus.CounterVec
	invalidations prometheus.Counter
}

// NewMetrics registers the cache counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pharmaforecast",
				Subsystem: "series_cache",
				Name:      "lookups_total",
				Help:      "Series cache lookups by result.",
			},
			[]string{"result"},
		),
		invalidations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pharmaforecast",
				Subsystem: "series_cache",
				Name:      "invalidations_total",
				Help:      "Series dropped through explicit invalidation.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.lookups, m.invalidations)
	}
	return m
}

func (m *Metrics) lookup(result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
}

func (m *Metrics) invalidated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidations.Add(float64(n))
}
