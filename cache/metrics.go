package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semcache/metric"
)

// managerMetrics holds Prometheus metrics for one manager.
type managerMetrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	registrations prometheus.Counter
	invalidations prometheus.Counter
	evictions     prometheus.Counter
	loadErrors    prometheus.Counter
	loadDuration  prometheus.Histogram
	size          prometheus.Gauge
	groups        prometheus.Gauge

	registry *metric.MetricsRegistry
	owner    string
}

func newManagerMetrics(registry *metric.MetricsRegistry, name string) (*managerMetrics, error) {
	labels := prometheus.Labels{"cache": name}
	counter := func(metricName, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "semcache",
			Subsystem:   "cache",
			Name:        metricName,
			ConstLabels: labels,
			Help:        help,
		})
	}
	gauge := func(metricName, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "semcache",
			Subsystem:   "cache",
			Name:        metricName,
			ConstLabels: labels,
			Help:        help,
		})
	}

	m := &managerMetrics{
		hits:          counter("hits_total", "Total number of cache hits"),
		misses:        counter("misses_total", "Total number of cache misses"),
		registrations: counter("registrations_total", "Total number of entities registered"),
		invalidations: counter("invalidations_total", "Total number of entities invalidated"),
		evictions:     counter("evictions_total", "Total number of entities evicted by cleanup policies"),
		loadErrors:    counter("load_errors_total", "Total number of failed loader calls"),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "semcache",
			Subsystem:   "cache",
			Name:        "load_duration_seconds",
			ConstLabels: labels,
			Help:        "Loader call duration in seconds",
			Buckets:     prometheus.DefBuckets,
		}),
		size:     gauge("size", "Current number of cached entities"),
		groups:   gauge("groups", "Current number of groups"),
		registry: registry,
		owner:    name,
	}

	var registered []string
	register := func(metricName string, err error) error {
		if err != nil {
			for _, n := range registered {
				registry.Unregister(m.owner, n)
			}
			return err
		}
		registered = append(registered, metricName)
		return nil
	}

	counters := []struct {
		name string
		c    prometheus.Counter
	}{
		{"cache_hits", m.hits},
		{"cache_misses", m.misses},
		{"cache_registrations", m.registrations},
		{"cache_invalidations", m.invalidations},
		{"cache_evictions", m.evictions},
		{"cache_load_errors", m.loadErrors},
	}
	for _, c := range counters {
		if err := register(c.name, registry.RegisterCounter(name, c.name, c.c)); err != nil {
			return nil, err
		}
	}
	if err := register("cache_load_duration", registry.RegisterHistogram(name, "cache_load_duration", m.loadDuration)); err != nil {
		return nil, err
	}
	if err := register("cache_size", registry.RegisterGauge(name, "cache_size", m.size)); err != nil {
		return nil, err
	}
	if err := register("cache_groups", registry.RegisterGauge(name, "cache_groups", m.groups)); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *managerMetrics) recordLoad(d time.Duration, err error) {
	m.loadDuration.Observe(d.Seconds())
	if err != nil {
		m.loadErrors.Inc()
	}
}

func (m *managerMetrics) updateSize(size, groups int) {
	m.size.Set(float64(size))
	m.groups.Set(float64(groups))
}

func (m *managerMetrics) unregister() {
	m.registry.UnregisterOwner(m.owner)
}
