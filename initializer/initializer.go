// Package initializer provides cache.Initializer policies that decide what
// a cache.Manager holds right after Initialize.
package initializer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/c360/semcache/cache"
	"github.com/c360/semcache/errors"
)

// Full preloads everything the loader's FetchAll returns.
type Full[V cache.Cacheable] struct{}

// Init returns loader.FetchAll.
func (Full[V]) Init(ctx context.Context, loader cache.Loader[V]) ([]V, error) {
	if loader == nil {
		return nil, errors.WrapInvalid(errors.ErrNoLoader, "Full", "Init", "preload")
	}
	all, err := loader.FetchAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Full", "Init", "fetch all")
	}
	return all, nil
}

// Groups preloads every group the GroupLoader lists, fetching up to
// Parallelism groups at once. A zero Parallelism fetches them all at once.
type Groups[V cache.Cacheable] struct {
	Parallelism int
}

// Init lists the groups and fetches each one. Members are returned group
// by group in the order FetchGroups listed them.
func (g Groups[V]) Init(ctx context.Context, loader cache.Loader[V]) ([]V, error) {
	gl, ok := loader.(cache.GroupLoader[V])
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrNotGroupLoader, "Groups", "Init", "preload")
	}

	keys, err := gl.FetchGroups(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Groups", "Init", "fetch groups")
	}

	results := make([][]V, len(keys))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	if g.Parallelism > 0 {
		eg.SetLimit(g.Parallelism)
	}
	for i, key := range keys {
		eg.Go(func() error {
			members, err := gl.FetchByGroup(egCtx, key)
			if err != nil {
				return errors.Wrap(err, "Groups", "Init", fmt.Sprintf("fetch group %s", key))
			}
			mu.Lock()
			results[i] = members
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var out []V
	for _, members := range results {
		out = append(out, members...)
	}
	return out, nil
}

// Keys preloads a fixed list of keys through FetchEntity. Keys the source
// does not know are skipped.
type Keys[V cache.Cacheable] struct {
	Keys []string
}

// Init fetches every key in order.
func (k Keys[V]) Init(ctx context.Context, loader cache.Loader[V]) ([]V, error) {
	if loader == nil {
		return nil, errors.WrapInvalid(errors.ErrNoLoader, "Keys", "Init", "preload")
	}

	out := make([]V, 0, len(k.Keys))
	for _, key := range k.Keys {
		v, found, err := loader.FetchEntity(ctx, key)
		if err != nil {
			return nil, errors.Wrap(err, "Keys", "Init", fmt.Sprintf("fetch %s", key))
		}
		if found {
			out = append(out, v)
		}
	}
	return out, nil
}
