// Package loader provides cache.Loader implementations and decorators.
//
// Func and GroupFunc adapt plain functions. KV reads JSON payloads from a
// key-value bucket such as a NATS JetStream bucket. Retrying and
// RateLimited wrap any loader to protect a slow or flaky source; both keep
// the cache.GroupLoader capability of the loader they wrap.
//
//	src := loader.NewKV[*Employee](store, loader.WithPrefix[*Employee]("emp."))
//	l := loader.NewRetrying[*Employee](src, errors.DefaultRetryConfig())
//	l = loader.NewRateLimited[*Employee](l, rate.Limit(50), 10)
//	mgr, err := cache.NewManager(cfg, cache.WithLoader(l))
package loader
