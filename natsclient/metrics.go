package natsclient

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semcache/metric"
)

const metricsOwner = "natsclient"

type clientMetrics struct {
	status        prometheus.Gauge
	failures      prometheus.Counter
	published     prometheus.Counter
	publishErrors prometheus.Counter

	registry *metric.MetricsRegistry
}

func newClientMetrics(registry *metric.MetricsRegistry) (*clientMetrics, error) {
	m := &clientMetrics{
		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "semcache",
			Subsystem: "nats",
			Name:      "connection_status",
			Help:      "Connection status (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 circuit open)",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semcache",
			Subsystem: "nats",
			Name:      "failures_total",
			Help:      "Total connection and publish failures",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semcache",
			Subsystem: "nats",
			Name:      "published_total",
			Help:      "Total messages published",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semcache",
			Subsystem: "nats",
			Name:      "publish_errors_total",
			Help:      "Total failed publishes",
		}),
		registry: registry,
	}

	if err := registry.RegisterGauge(metricsOwner, "connection_status", m.status); err != nil {
		return nil, err
	}
	registered := []string{"connection_status"}
	for _, c := range []struct {
		name string
		c    prometheus.Counter
	}{
		{"failures", m.failures},
		{"published", m.published},
		{"publish_errors", m.publishErrors},
	} {
		if err := registry.RegisterCounter(metricsOwner, c.name, c.c); err != nil {
			for _, n := range registered {
				registry.Unregister(metricsOwner, n)
			}
			return nil, err
		}
		registered = append(registered, c.name)
	}
	return m, nil
}

func (m *clientMetrics) unregister() {
	m.registry.UnregisterOwner(metricsOwner)
}
