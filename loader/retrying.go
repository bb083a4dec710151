package loader

import (
	"context"
	"log/slog"

	"github.com/c360/semcache/cache"
	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/retry"
)

// Retrying retries transient failures of the wrapped loader with
// exponential backoff. Invalid and fatal errors are returned at once.
type Retrying[V cache.Cacheable] struct {
	inner  cache.Loader[V]
	cfg    retry.Config
	logger *slog.Logger
}

type retryingGroup[V cache.Cacheable] struct {
	*Retrying[V]
	group cache.GroupLoader[V]
}

// NewRetrying wraps inner. The result is a cache.GroupLoader when inner is
// one.
func NewRetrying[V cache.Cacheable](inner cache.Loader[V], cfg errors.RetryConfig) cache.Loader[V] {
	rc := cfg.ToRetryConfig()
	rc.Retryable = func(err error) bool { return cfg.ShouldRetry(err, 0) }

	r := &Retrying[V]{
		inner:  inner,
		cfg:    rc,
		logger: slog.Default().With("component", "loader.Retrying"),
	}
	if gl, ok := inner.(cache.GroupLoader[V]); ok {
		return &retryingGroup[V]{Retrying: r, group: gl}
	}
	return r
}

type fetched[V cache.Cacheable] struct {
	v     V
	found bool
}

// FetchEntity retries inner.FetchEntity.
func (r *Retrying[V]) FetchEntity(ctx context.Context, key string) (V, bool, error) {
	attempt := 0
	res, err := retry.DoWithResult(ctx, r.cfg, func() (fetched[V], error) {
		attempt++
		v, found, err := r.inner.FetchEntity(ctx, key)
		if err != nil && attempt > 1 {
			r.logger.Debug("Retry failed", "op", "FetchEntity", "key", key, "attempt", attempt, "error", err)
		}
		return fetched[V]{v: v, found: found}, err
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.v, res.found, nil
}

// FetchAll retries inner.FetchAll.
func (r *Retrying[V]) FetchAll(ctx context.Context) ([]V, error) {
	return retry.DoWithResult(ctx, r.cfg, func() ([]V, error) {
		return r.inner.FetchAll(ctx)
	})
}

func (r *retryingGroup[V]) FetchGroups(ctx context.Context) ([]string, error) {
	return retry.DoWithResult(ctx, r.cfg, func() ([]string, error) {
		return r.group.FetchGroups(ctx)
	})
}

func (r *retryingGroup[V]) FetchByGroup(ctx context.Context, groupKey string) ([]V, error) {
	return retry.DoWithResult(ctx, r.cfg, func() ([]V, error) {
		return r.group.FetchByGroup(ctx, groupKey)
	})
}
