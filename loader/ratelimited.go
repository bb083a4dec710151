package loader

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/c360/semcache/cache"
	"github.com/c360/semcache/errors"
)

// RateLimited caps the rate of calls reaching the wrapped loader. Callers
// wait for a token; a wait that cannot finish before ctx ends fails with
// errors.ErrRateLimited.
type RateLimited[V cache.Cacheable] struct {
	inner   cache.Loader[V]
	limiter *rate.Limiter
}

type rateLimitedGroup[V cache.Cacheable] struct {
	*RateLimited[V]
	group cache.GroupLoader[V]
}

// NewRateLimited allows limit calls per second with the given burst. The
// result is a cache.GroupLoader when inner is one.
func NewRateLimited[V cache.Cacheable](inner cache.Loader[V], limit rate.Limit, burst int) cache.Loader[V] {
	r := &RateLimited[V]{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
	if gl, ok := inner.(cache.GroupLoader[V]); ok {
		return &rateLimitedGroup[V]{RateLimited: r, group: gl}
	}
	return r
}

func (r *RateLimited[V]) wait(ctx context.Context, op string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrRateLimited, err), "RateLimited", op, "wait for token")
	}
	return nil
}

// FetchEntity waits for a token, then calls the wrapped loader.
func (r *RateLimited[V]) FetchEntity(ctx context.Context, key string) (V, bool, error) {
	if err := r.wait(ctx, "FetchEntity"); err != nil {
		var zero V
		return zero, false, err
	}
	return r.inner.FetchEntity(ctx, key)
}

// FetchAll waits for a token, then calls the wrapped loader.
func (r *RateLimited[V]) FetchAll(ctx context.Context) ([]V, error) {
	if err := r.wait(ctx, "FetchAll"); err != nil {
		return nil, err
	}
	return r.inner.FetchAll(ctx)
}

func (r *rateLimitedGroup[V]) FetchGroups(ctx context.Context) ([]string, error) {
	if err := r.wait(ctx, "FetchGroups"); err != nil {
		return nil, err
	}
	return r.group.FetchGroups(ctx)
}

func (r *rateLimitedGroup[V]) FetchByGroup(ctx context.Context, groupKey string) ([]V, error) {
	if err := r.wait(ctx, "FetchByGroup"); err != nil {
		return nil, err
	}
	return r.group.FetchByGroup(ctx, groupKey)
}
