// Package semcache provides a read-through cache manager with pluggable
// loading, preloading, eviction and notification policies.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│        control (HTTP, JSON)         │  stats, settings, flush,
//	│    runtime management surface       │  on-demand cleanup
//	└─────────────────────────────────────┘
//	           ↓ manages
//	┌─────────────────────────────────────┐
//	│          cache.Manager              │  groups, entities,
//	│  (Get, GetByGroup, GetAll, ...)     │  secondary keys, stats
//	└─────────────────────────────────────┘
//	     ↓ loads via        ↓ emits          ↓ sweeps with
//	┌──────────┐     ┌──────────────┐  ┌──────────────────┐
//	│  loader  │     │   notifier   │  │ cleanup policies │
//	│ func, KV │     │ log, NATS    │  │ idle, ttl, rank  │
//	└──────────┘     └──────────────┘  └──────────────────┘
//
// A Manager holds entities in groups. Ungrouped entities share the default
// group. On a miss the Manager asks its Loader, registers the result and
// notifies its Notifier. An atomic manager loads and evicts whole groups.
// Each cleanup policy runs on its own schedule until Close.
//
// # Packages
//
//   - cache: the Manager, groups, cleanup policies, statistics and metrics
//   - loader: function, JetStream KV, retrying and rate limited loaders
//   - initializer: full, per-group and per-key preload policies
//   - notifier: log, fan-out, async, NATS publish and peer listener
//   - control: runtime management and its HTTP handlers
//   - natsclient: NATS connection with circuit breaker and KV helpers
//   - metric: Prometheus registry and exposition server
//   - errors: transient, invalid and fatal error classification
//   - pkg/retry, pkg/worker: backoff and worker pool utilities
//   - testutil: fixtures, fake clock and mocks for tests
//
// # Usage
//
//	mgr, err := cache.NewManager(cache.Config{
//	    Name:            "letters",
//	    DefaultIdleTime: 10 * time.Minute,
//	    CleanupInterval: time.Minute,
//	}, cache.WithLoader[*Letter](lettersLoader))
//	if err != nil {
//	    return err
//	}
//	if err := mgr.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	letter, found, err := mgr.Get(ctx, "a")
//
// # Binary
//
// cmd/semcache serves JSON records through a Manager:
//
//	./bin/semcache --config configs/semcache.yaml --data configs/records.json --preload groups
//
// It exposes /metrics, /health, /cache/ (control) and /records/{key}.
package semcache
