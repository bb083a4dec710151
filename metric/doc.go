// Package metric provides the Prometheus registry and HTTP exposition server
// shared by cache managers, the notifier worker pool and the NATS client.
//
// A MetricsRegistry wraps a private prometheus.Registry. Collectors are
// registered under an owner name (usually the cache name), which lets a
// closing cache remove everything it registered with UnregisterOwner:
//
//	registry := metric.NewMetricsRegistry()
//	mgr, err := cache.NewManager[*User](cfg, cache.WithMetrics[*User](registry))
//
// CoreMetrics holds metrics labelled by cache and policy that every manager
// on the registry records into: whether the manager is active, sweep counts,
// sweep durations, evictions and failed sweeps.
//
// Server serves the registry at /metrics (OpenMetrics enabled) and /health.
// Additional handlers, such as the control package's JSON endpoints, can be
// mounted with Handle before Start:
//
//	server := metric.NewServer(":9090", "/metrics", registry)
//	server.Handle("/cache/", control.NewHandler(ctl))
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop(5 * time.Second)
package metric
