// Package cache provides Manager, a generic read-through cache that sits in
// front of a slow persistence source.
//
// Payloads implement Cacheable. Payloads that also implement GroupCacheable
// are kept in named groups that can be read, refreshed and evicted
// together; CompoundKeyCacheable payloads are additionally reachable
// through named secondary indexes. Everything else shares a default group.
//
// On a miss the manager asks its Loader. Concurrent misses for the same key
// share one loader call. When the manager is configured with AtomicGroup,
// a miss on a grouped entity loads its whole group, and invalidating or
// expiring any member drops the whole group.
//
//	mgr, err := cache.NewManager[*User](cfg,
//	    cache.WithLoader[*User](userLoader),
//	    cache.WithInitializer[*User](initializer.Full[*User]()),
//	    cache.WithMetrics[*User](registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := mgr.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	user, found, err := mgr.Get(ctx, "u-42")
//
// Initialize chooses a built-in expiry policy from the configured defaults
// (IdleTimePolicy, TimeToLivePolicy or ExpiredPolicy) and starts one
// scheduler goroutine per cleanup policy. Close cancels and joins them.
//
// Statistics are always collected. WithMetrics additionally exports them
// to a metric.MetricsRegistry.
package cache
