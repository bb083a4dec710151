package notifier

import (
	"context"
	"time"

	"github.com/c360/semcache/cache"
	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/worker"
)

// Async hands events to a worker pool so a slow notifier never delays a
// cache read. Events submitted while the queue is full are dropped.
type Async[V cache.Cacheable] struct {
	inner cache.Notifier[V]
	pool  *worker.Pool[cache.Event[V]]
}

// NewAsync wraps inner. Call Start before the manager emits events and Stop
// on shutdown.
func NewAsync[V cache.Cacheable](name string, inner cache.Notifier[V], workers, queueSize int,
	opts ...worker.Option[cache.Event[V]]) (*Async[V], error) {
	if inner == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Async", "NewAsync", "inner notifier check")
	}

	a := &Async[V]{inner: inner}
	pool, err := worker.NewPool(name, workers, queueSize, a.deliver, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "Async", "NewAsync", "pool creation")
	}
	a.pool = pool
	return a, nil
}

func (a *Async[V]) deliver(_ context.Context, event cache.Event[V]) error {
	a.inner.NotifyCache(event)
	return nil
}

// Start launches the delivery workers.
func (a *Async[V]) Start(ctx context.Context) error {
	return a.pool.Start(ctx)
}

// Stop delivers queued events, waiting at most timeout.
func (a *Async[V]) Stop(timeout time.Duration) error {
	return a.pool.Stop(timeout)
}

// NotifyCache queues event. It never blocks.
func (a *Async[V]) NotifyCache(event cache.Event[V]) {
	_ = a.pool.Submit(event)
}

// Stats reports delivery counters, including dropped events.
func (a *Async[V]) Stats() worker.PoolStats {
	return a.pool.Stats()
}
