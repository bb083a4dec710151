package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds metrics shared by every cache manager on a registry,
// labelled by cache name and cleanup policy.
type Metrics struct {
	ManagersActive *prometheus.GaugeVec
	SweepsTotal    *prometheus.CounterVec
	SweepErrors    *prometheus.CounterVec
	SweepDuration  *prometheus.HistogramVec
	SweepEvicted   *prometheus.CounterVec
}

// NewMetrics creates the shared cache metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ManagersActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "semcache",
				Subsystem: "manager",
				Name:      "active",
				Help:      "Whether a cache manager is initialized (1) or closed (0)",
			},
			[]string{"cache"},
		),
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semcache",
				Subsystem: "cleanup",
				Name:      "sweeps_total",
				Help:      "Total number of scheduled cleanup sweeps",
			},
			[]string{"cache", "policy"},
		),
		SweepErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semcache",
				Subsystem: "cleanup",
				Name:      "errors_total",
				Help:      "Total number of cleanup sweeps that failed",
			},
			[]string{"cache", "policy"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "semcache",
				Subsystem: "cleanup",
				Name:      "duration_seconds",
				Help:      "Cleanup sweep duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"cache", "policy"},
		),
		SweepEvicted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semcache",
				Subsystem: "cleanup",
				Name:      "evicted_total",
				Help:      "Total number of entities removed by cleanup policies",
			},
			[]string{"cache", "policy"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ManagersActive,
		m.SweepsTotal,
		m.SweepErrors,
		m.SweepDuration,
		m.SweepEvicted,
	}
}

// RecordManagerActive marks a cache manager as running or stopped
func (m *Metrics) RecordManagerActive(cache string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.ManagersActive.WithLabelValues(cache).Set(v)
}

// RecordSweep records one scheduled sweep of a policy
func (m *Metrics) RecordSweep(cache, policy string, duration time.Duration, evicted int, err error) {
	m.SweepsTotal.WithLabelValues(cache, policy).Inc()
	m.SweepDuration.WithLabelValues(cache, policy).Observe(duration.Seconds())
	if evicted > 0 {
		m.SweepEvicted.WithLabelValues(cache, policy).Add(float64(evicted))
	}
	if err != nil {
		m.SweepErrors.WithLabelValues(cache, policy).Inc()
	}
}
