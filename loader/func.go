package loader

import (
	"context"

	"github.com/c360/semcache/cache"
)

// Func adapts functions to cache.Loader. A nil Entity finds nothing and a
// nil All returns no entities.
type Func[V cache.Cacheable] struct {
	Entity func(ctx context.Context, key string) (V, bool, error)
	All    func(ctx context.Context) ([]V, error)
}

// FetchEntity calls Entity.
func (f Func[V]) FetchEntity(ctx context.Context, key string) (V, bool, error) {
	if f.Entity == nil {
		var zero V
		return zero, false, nil
	}
	return f.Entity(ctx, key)
}

// FetchAll calls All.
func (f Func[V]) FetchAll(ctx context.Context) ([]V, error) {
	if f.All == nil {
		return nil, nil
	}
	return f.All(ctx)
}

// GroupFunc adapts functions to cache.GroupLoader.
type GroupFunc[V cache.Cacheable] struct {
	Func[V]
	Groups  func(ctx context.Context) ([]string, error)
	ByGroup func(ctx context.Context, groupKey string) ([]V, error)
}

// FetchGroups calls Groups.
func (f GroupFunc[V]) FetchGroups(ctx context.Context) ([]string, error) {
	if f.Groups == nil {
		return nil, nil
	}
	return f.Groups(ctx)
}

// FetchByGroup calls ByGroup.
func (f GroupFunc[V]) FetchByGroup(ctx context.Context, groupKey string) ([]V, error) {
	if f.ByGroup == nil {
		return nil, nil
	}
	return f.ByGroup(ctx, groupKey)
}

var (
	_ cache.Loader[cache.Cacheable]      = Func[cache.Cacheable]{}
	_ cache.GroupLoader[cache.Cacheable] = GroupFunc[cache.Cacheable]{}
)
