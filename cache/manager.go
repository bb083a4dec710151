package cache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/metric"
)

// Manager is a read-through cache in front of a slow persistence source.
// Entities are kept in groups; ungrouped entities share the default group.
//
// One RWMutex guards the group map and every entity's bookkeeping. Loader
// and notifier calls are always made without holding it.
type Manager[V Cacheable] struct {
	name   string
	logger *slog.Logger
	clock  Clock

	mu     sync.RWMutex
	groups map[groupID]*Group[V]

	// policy references and mutable settings
	pmu         sync.RWMutex
	cfg         Config
	loader      Loader[V]
	initializer Initializer[V]
	notifier    Notifier[V]
	policies    []CleanupPolicy

	stats    *Statistics
	metrics  *managerMetrics
	core     *metric.Metrics
	inflight singleflight.Group

	// lifecycle
	lmu     sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	workers *errgroup.Group
}

// NewManager creates a manager. Call Initialize to preload and start the
// cleanup schedulers; a manager that is never initialized still serves
// reads but never expires anything on its own.
func NewManager[V Cacheable](cfg Config, options ...Option[V]) (*Manager[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "cache", "NewManager", "config validation failed")
	}

	opts := applyOptions(options...)

	m := &Manager[V]{
		name:        cfg.Name,
		logger:      opts.logger.With("cache", cfg.Name),
		clock:       opts.clock,
		groups:      make(map[groupID]*Group[V]),
		cfg:         cfg,
		loader:      opts.loader,
		initializer: opts.initializer,
		notifier:    opts.notifier,
		policies:    slices.Clone(opts.policies),
		stats:       NewStatistics(),
	}

	if opts.metricsReg != nil {
		metrics, err := newManagerMetrics(opts.metricsReg, cfg.Name)
		if err != nil {
			return nil, errors.Wrap(err, "cache", "NewManager", "metrics registration")
		}
		m.metrics = metrics
		m.core = opts.metricsReg.CoreMetrics()
	}

	return m, nil
}

// Name returns the manager name.
func (m *Manager[V]) Name() string { return m.name }

// Stats returns the live statistics.
func (m *Manager[V]) Stats() *Statistics { return m.stats }

// HitCounter returns the total number of hits.
func (m *Manager[V]) HitCounter() int64 { return m.stats.Hits() }

// MissCounter returns the total number of misses.
func (m *Manager[V]) MissCounter() int64 { return m.stats.Misses() }

// HitRatio returns hits/(hits+misses), 0 before the first request.
func (m *Manager[V]) HitRatio() float64 { return m.stats.HitRatio() }

// Size returns the number of cached entities across all groups.
func (m *Manager[V]) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sizeLocked()
}

func (m *Manager[V]) sizeLocked() int {
	n := 0
	for _, g := range m.groups {
		n += g.Size()
	}
	return n
}

// GroupKeys returns the keys of the named groups currently cached, sorted.
func (m *Manager[V]) GroupKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.groups))
	for id := range m.groups {
		if id.scoped {
			keys = append(keys, id.key)
		}
	}
	slices.Sort(keys)
	return keys
}

// lookupLocked scans every group for key. The caller holds mu.
func (m *Manager[V]) lookupLocked(key string) (*entry[V], *Group[V]) {
	for _, g := range m.groups {
		if e := g.get(key); e != nil {
			return e, g
		}
	}
	return nil, nil
}

// Peek returns the cached payload for key without loading, touching or
// counting anything.
func (m *Manager[V]) Peek(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, _ := m.lookupLocked(key); e != nil {
		return e.payload, true
	}
	var zero V
	return zero, false
}

// Get returns the payload for key, loading it on a miss. A key the source
// does not know yields found=false and a nil error.
func (m *Manager[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if key == "" {
		return zero, false, errors.WrapInvalid(errors.ErrInvalidKey, "Manager", "Get", "key lookup")
	}

	m.mu.Lock()
	if e, g := m.lookupLocked(key); e != nil {
		g.hits++
		e.touch(m.clock.Now())
		payload, groupKey := e.payload, e.desc.group
		m.mu.Unlock()

		m.recordHit()
		m.logger.Debug("Cache hit", "key", key)
		m.notify(EventHitInstance, key, groupKey, payload)
		return payload, true, nil
	}
	m.mu.Unlock()

	m.recordMiss()
	m.logger.Debug("Cache miss", "key", key)

	// The shared load ignores the first caller's cancellation; each caller
	// stops waiting when its own ctx ends.
	fillCtx := context.WithoutCancel(ctx)
	ch := m.inflight.DoChan(key, func() (any, error) {
		return m.fill(fillCtx, key)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, false, errors.WrapTransient(ctx.Err(), "Manager", "Get", "wait for load")
	case res = <-ch:
	}
	if res.Err != nil {
		return zero, false, res.Err
	}

	r := res.Val.(fillResult[V])
	if !r.found {
		m.notify(EventMissInstance, key, "", zero)
		return zero, false, nil
	}
	m.notify(EventMissInstance, key, r.desc.group, r.payload)
	return r.payload, true, nil
}

type fillResult[V Cacheable] struct {
	payload V
	desc    descriptor
	found   bool
}

// fill loads key and, on an atomic manager, the rest of its group, then
// registers everything in one batch.
func (m *Manager[V]) fill(ctx context.Context, key string) (fillResult[V], error) {
	loader := m.Loader()
	if loader == nil {
		return fillResult[V]{}, errors.WrapInvalid(errors.ErrNoLoader, "Manager", "Get", "entity fetch")
	}

	var (
		v     V
		found bool
	)
	err := m.timedLoad(func() error {
		var err error
		v, found, err = loader.FetchEntity(ctx, key)
		return err
	})
	if err != nil {
		return fillResult[V]{}, errors.Wrap(err, "Manager", "Get", "entity fetch")
	}
	if !found {
		return fillResult[V]{}, nil
	}

	desc := describe(v)
	batch := []V{v}
	if desc.grouped && m.IsAtomicGroup() {
		members, err := m.fetchGroup(ctx, "Get", desc.group)
		if err != nil {
			return fillResult[V]{}, err
		}
		for _, member := range members {
			if member.CacheKey() != v.CacheKey() {
				batch = append(batch, member)
			}
		}
	}

	if err := m.register(batch); err != nil {
		return fillResult[V]{}, err
	}
	return fillResult[V]{payload: v, desc: desc, found: true}, nil
}

// fetchGroup calls the group loader and checks that every member belongs
// to groupKey.
func (m *Manager[V]) fetchGroup(ctx context.Context, op, groupKey string) ([]V, error) {
	gl, err := m.groupLoader(op)
	if err != nil {
		return nil, err
	}

	var members []V
	err = m.timedLoad(func() error {
		var err error
		members, err = gl.FetchByGroup(ctx, groupKey)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "Manager", op, "group fetch")
	}

	want := scopedGroup(groupKey)
	for _, member := range members {
		if id := describe(member).id(); id != want {
			return nil, errors.WrapInvalid(errors.ErrMixedGroups, "Manager", op,
				fmt.Sprintf("entity %q of group %s returned for group %s", member.CacheKey(), id, want))
		}
	}
	return members, nil
}

func (m *Manager[V]) groupLoader(op string) (GroupLoader[V], error) {
	loader := m.Loader()
	if loader == nil {
		return nil, errors.WrapInvalid(errors.ErrNoLoader, "Manager", op, "group fetch")
	}
	gl, ok := loader.(GroupLoader[V])
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrNotGroupLoader, "Manager", op, "group fetch")
	}
	return gl, nil
}

func (m *Manager[V]) timedLoad(fn func() error) error {
	start := time.Now()
	m.stats.load()
	err := fn()
	if err != nil {
		m.stats.loadError()
	}
	if m.metrics != nil {
		m.metrics.recordLoad(time.Since(start), err)
	}
	return err
}

// GetByGroup returns every member of a group, loading the group through the
// GroupLoader when it is not cached.
func (m *Manager[V]) GetByGroup(ctx context.Context, groupKey string) ([]V, bool, error) {
	id := scopedGroup(groupKey)

	m.mu.Lock()
	if g, ok := m.groups[id]; ok {
		g.hits++
		payloads := g.extract(m.clock.Now())
		m.mu.Unlock()

		m.logger.Debug("Group hit", "group", groupKey, "members", len(payloads))
		m.notify(EventHitGroup, "", groupKey, *new(V))
		return payloads, true, nil
	}
	m.mu.Unlock()

	m.recordMiss()
	m.logger.Debug("Group miss", "group", groupKey)

	members, err := m.fetchGroup(ctx, "GetByGroup", groupKey)
	if err != nil {
		return nil, false, err
	}
	if err := m.register(members); err != nil {
		return nil, false, err
	}

	m.notify(EventMissGroup, "", groupKey, *new(V))
	return members, len(members) > 0, nil
}

// GetAll returns every entity of an ungrouped manager, loading the whole
// source on a miss. A grouped manager returns ErrGroupedManager.
func (m *Manager[V]) GetAll(ctx context.Context) ([]V, error) {
	if m.IsGrouped() {
		return nil, errors.WrapInvalid(errors.ErrGroupedManager, "Manager", "GetAll", "read all")
	}

	m.mu.Lock()
	if g, ok := m.groups[groupID{}]; ok {
		g.hits++
		payloads := g.extract(m.clock.Now())
		m.mu.Unlock()

		m.recordHit()
		m.notify(EventHitAll, "", "", *new(V))
		return payloads, nil
	}
	m.mu.Unlock()

	m.recordMiss()

	loader := m.Loader()
	if loader == nil {
		return nil, errors.WrapInvalid(errors.ErrNoLoader, "Manager", "GetAll", "full fetch")
	}

	var all []V
	err := m.timedLoad(func() error {
		var err error
		all, err = loader.FetchAll(ctx)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "Manager", "GetAll", "full fetch")
	}
	if err := m.register(all); err != nil {
		return nil, err
	}

	m.notify(EventMissAll, "", "", *new(V))
	return all, nil
}

// owningGroupLocked finds the group holding v: by declared group key for
// group-aware payloads, otherwise by scanning for its key.
func (m *Manager[V]) owningGroupLocked(v V, desc descriptor) *Group[V] {
	if desc.grouped {
		return m.groups[desc.id()]
	}
	_, g := m.lookupLocked(v.CacheKey())
	return g
}

// Invalidate removes v from the cache. In an atomic group the whole group
// goes. An entity that is not cached is ignored.
func (m *Manager[V]) Invalidate(ctx context.Context, v V) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	desc := describe(v)

	m.mu.Lock()
	g := m.owningGroupLocked(v, desc)
	if g == nil {
		m.mu.Unlock()
		return nil
	}

	removed := 0
	if g.Atomic() {
		removed = g.Size()
		for _, e := range g.members {
			e.invalidated = true
		}
		delete(m.groups, g.id)
	} else if e := g.get(v.CacheKey()); e != nil {
		e.invalidated = true
		g.drop(e)
		removed = 1
		if g.Size() == 0 {
			delete(m.groups, g.id)
		}
	}
	size, groups := m.sizeLocked(), len(m.groups)
	m.mu.Unlock()

	m.stats.invalidate(removed)
	if m.metrics != nil {
		m.metrics.invalidations.Add(float64(removed))
		m.metrics.updateSize(size, groups)
	}

	m.logger.Debug("Invalidated entity", "key", v.CacheKey(), "group", g.id.String(), "removed", removed)
	m.notify(EventInvalidate, v.CacheKey(), desc.group, v)
	return nil
}

// Refresh replaces the cached copy of v. An atomic group is flushed and
// reloaded through the GroupLoader; otherwise v is registered again, which
// resets its hit count and timers. An uncached v is registered as new.
func (m *Manager[V]) Refresh(ctx context.Context, v V) error {
	desc := describe(v)

	m.mu.RLock()
	g := m.owningGroupLocked(v, desc)
	m.mu.RUnlock()

	if g == nil {
		return m.register([]V{v})
	}

	if g.Atomic() {
		members, err := m.fetchGroup(ctx, "Refresh", desc.group)
		if err != nil {
			return err
		}
		if err := m.store(members, &g.id); err != nil {
			return err
		}
	} else if err := m.register([]V{v}); err != nil {
		return err
	}

	m.logger.Debug("Refreshed entity", "key", v.CacheKey(), "group", g.id.String())
	m.notify(EventRefresh, v.CacheKey(), desc.group, v)
	return nil
}

// FlushGroup removes a named group.
func (m *Manager[V]) FlushGroup(groupKey string) {
	m.mu.Lock()
	delete(m.groups, scopedGroup(groupKey))
	size, groups := m.sizeLocked(), len(m.groups)
	m.mu.Unlock()

	m.updateSize(size, groups)
	m.logger.Info("Flushed group", "group", groupKey)
}

// FlushAll removes every cached entity.
func (m *Manager[V]) FlushAll() {
	m.mu.Lock()
	clear(m.groups)
	m.mu.Unlock()

	m.updateSize(0, 0)
	m.logger.Info("Flushed cache")
}

// register wraps and inserts a batch. The whole batch is validated before
// anything is inserted.
func (m *Manager[V]) register(batch []V) error {
	return m.store(batch, nil)
}

// store inserts batch. A non-nil replace names a group that is swapped for
// the batch in the same critical section; if the batch is rejected the old
// group stays in place.
func (m *Manager[V]) store(batch []V, replace *groupID) error {
	if len(batch) == 0 && replace == nil {
		return nil
	}

	m.pmu.RLock()
	idle, ttl, atomic := m.cfg.DefaultIdleTime, m.cfg.DefaultTimeToLive, m.cfg.AtomicGroup
	m.pmu.RUnlock()

	now := m.clock.Now()
	entries := make([]*entry[V], len(batch))
	for i, v := range batch {
		entries[i] = newEntry(v, now, idle, ttl)
	}

	m.mu.Lock()
	var (
		old    *Group[V]
		hadOld bool
	)
	if replace != nil {
		old, hadOld = m.groups[*replace]
		delete(m.groups, *replace)
	}
	restore := func() {
		switch {
		case hadOld:
			m.groups[*replace] = old
		case replace != nil:
			delete(m.groups, *replace)
		}
	}

	if err := m.checkLocked(entries); err != nil {
		restore()
		m.mu.Unlock()
		return err
	}
	for _, e := range entries {
		id := e.desc.id()
		g, ok := m.groups[id]
		if !ok {
			// The default group is never atomic.
			g = newGroup[V](id, atomic && id.scoped)
			m.groups[id] = g
		}
		if err := g.add(e); err != nil {
			restore()
			m.mu.Unlock()
			return err
		}
	}
	size, groups := m.sizeLocked(), len(m.groups)
	m.mu.Unlock()

	m.stats.register(len(entries))
	if m.metrics != nil {
		m.metrics.registrations.Add(float64(len(entries)))
		m.metrics.updateSize(size, groups)
	}
	for _, e := range entries {
		m.notify(EventRegister, e.key, e.desc.group, e.payload)
	}
	return nil
}

// checkLocked verifies that every entry of a batch can join its group,
// including groups the batch itself creates.
func (m *Manager[V]) checkLocked(entries []*entry[V]) error {
	layouts := make(map[groupID][]string)
	for _, e := range entries {
		id := e.desc.id()
		names := e.desc.indexNames()

		want, seen := layouts[id]
		if !seen {
			if g, ok := m.groups[id]; ok && g.Size() > 0 {
				if _, replacing := g.members[e.key]; !(replacing && g.Size() == 1) {
					want, seen = g.indexNames(), true
				}
			}
		}
		if seen && !slices.Equal(want, names) {
			return errors.WrapInvalid(errors.ErrIndexMismatch, "Manager", "register",
				fmt.Sprintf("entity %q has indexes %s, group %s has %s",
					e.key, formatIndexes(names), id, formatIndexes(want)))
		}
		layouts[id] = names
	}
	return nil
}

// SetMaxIdleTime overrides the max idle time of one cached entity.
func (m *Manager[V]) SetMaxIdleTime(key string, d time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, _ := m.lookupLocked(key)
	if e == nil {
		return false
	}
	e.maxIdle = d
	return true
}

// SetMaxTimeToLive overrides the time to live of one cached entity.
func (m *Manager[V]) SetMaxTimeToLive(key string, d time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, _ := m.lookupLocked(key)
	if e == nil {
		return false
	}
	e.maxTTL = d
	return true
}

func (m *Manager[V]) recordHit() {
	m.stats.hit()
	if m.metrics != nil {
		m.metrics.hits.Inc()
	}
}

func (m *Manager[V]) recordMiss() {
	m.stats.miss()
	if m.metrics != nil {
		m.metrics.misses.Inc()
	}
}

func (m *Manager[V]) updateSize(size, groups int) {
	if m.metrics != nil {
		m.metrics.updateSize(size, groups)
	}
}

func (m *Manager[V]) notify(kind EventKind, key, groupKey string, v V) {
	n := m.Notifier()
	if n == nil {
		return
	}
	n.NotifyCache(Event[V]{
		Kind:     kind,
		Cache:    m.name,
		Key:      key,
		GroupKey: groupKey,
		Entity:   v,
		Time:     m.clock.Now(),
	})
}
