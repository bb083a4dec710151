// Package worker provides a generic bounded worker pool.
//
// A Pool runs a fixed number of goroutines that take work items from a
// bounded queue. Submit never blocks: when the queue is full the item is
// dropped and ErrQueueFull is returned, so a slow consumer can never stall
// the caller. The cache's asynchronous notifier uses a Pool to deliver
// events off the request path.
//
//	pool, err := worker.NewPool("events", 4, 256,
//	    func(ctx context.Context, ev cache.Event[*Item]) error {
//	        return publish(ctx, ev)
//	    })
//	if err != nil {
//	    return err
//	}
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// Statistics are always tracked with atomics; Prometheus metrics labelled
// with the pool name are added with WithMetricsRegistry.
package worker
