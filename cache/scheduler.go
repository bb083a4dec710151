package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/semcache/errors"
)

// groupSet adapts the manager's group map for cleanup policies. It is only
// used while the manager's write lock is held.
type groupSet[V Cacheable] struct {
	groups map[groupID]*Group[V]
}

func (s groupSet[V]) Groups() []GroupView {
	out := make([]GroupView, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	return out
}

func (s groupSet[V]) Drop(view GroupView) {
	if g, ok := view.(*Group[V]); ok && s.groups[g.id] == g {
		delete(s.groups, g.id)
	}
}

// Cleanup runs every cleanup policy once, each under the exclusive lock.
// An empty cache is skipped without locking. A panicking policy is
// reported in the returned error and the remaining policies still run.
func (m *Manager[V]) Cleanup(ctx context.Context) error {
	if m.Size() == 0 {
		return nil
	}

	var errs []error
	for _, p := range m.CleanupPolicies() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := m.runPolicy(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager[V]) runPolicy(p CleanupPolicy) (evicted int, err error) {
	start := time.Now()

	m.mu.Lock()
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrPolicyPanic, r),
					"Manager", "Cleanup", fmt.Sprintf("policy %s", p.Name()))
			}
		}()
		evicted = p.Cleanup(groupSet[V]{groups: m.groups}, m.clock.Now())
	}()
	size, groups := m.sizeLocked(), len(m.groups)
	m.mu.Unlock()

	m.stats.evict(evicted)
	if m.metrics != nil {
		m.metrics.evictions.Add(float64(evicted))
		m.metrics.updateSize(size, groups)
	}
	if m.core != nil {
		m.core.RecordSweep(m.name, p.Name(), time.Since(start), evicted, err)
	}
	if evicted > 0 {
		m.logger.Debug("Cleanup sweep evicted entities", "policy", p.Name(), "evicted", evicted)
	}
	return evicted, err
}

// Initialize preloads the cache through the initializer and starts one
// cleanup scheduler per policy. The built-in expiry policy is chosen from
// the configured defaults. It may be called once.
func (m *Manager[V]) Initialize(ctx context.Context) error {
	m.lmu.Lock()
	defer m.lmu.Unlock()

	if m.closed {
		return errors.WrapInvalid(errors.ErrClosed, "Manager", "Initialize", "start")
	}
	if m.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Manager", "Initialize", "start")
	}

	if initializer := m.Initializer(); initializer != nil {
		entities, err := initializer.Init(ctx, m.Loader())
		if err != nil {
			return errors.Wrap(err, "Manager", "Initialize", "initializer")
		}
		if err := m.register(entities); err != nil {
			return err
		}
		m.logger.Info("Cache preloaded", "entities", len(entities))
	}

	m.pmu.Lock()
	if p := m.cfg.expiryPolicy(); p != nil {
		m.policies = append(m.policies, p)
	}
	m.pmu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	workers, runCtx := errgroup.WithContext(runCtx)
	for _, p := range m.CleanupPolicies() {
		workers.Go(func() error {
			m.schedule(runCtx, p)
			return nil
		})
	}

	m.cancel = cancel
	m.workers = workers
	m.started = true
	if m.core != nil {
		m.core.RecordManagerActive(m.name, true)
	}
	m.logger.Info("Cache manager initialized", "policies", len(m.CleanupPolicies()))
	return nil
}

// schedule runs p every frequency until ctx is cancelled. Sweep failures
// are logged and the loop keeps going.
func (m *Manager[V]) schedule(ctx context.Context, p CleanupPolicy) {
	m.pmu.RLock()
	interval := m.cfg.CleanupInterval
	m.pmu.RUnlock()
	if f := p.Frequency(); f > 0 {
		interval = f
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	m.logger.Debug("Cleanup scheduler started", "policy", p.Name(), "interval", interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Cleanup scheduler stopped", "policy", p.Name())
			return
		case <-timer.C:
		}

		if m.Size() > 0 {
			if _, err := m.runPolicy(p); err != nil {
				m.logger.Error("Cleanup sweep failed", "policy", p.Name(), "error", err)
			}
		}
		timer.Reset(interval)
	}
}

// Close stops and joins every cleanup scheduler and releases the
// manager's metrics. Calling Close more than once is harmless.
func (m *Manager[V]) Close() error {
	m.lmu.Lock()
	defer m.lmu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.cancel != nil {
		m.cancel()
	}
	var err error
	if m.workers != nil {
		err = m.workers.Wait()
	}

	if m.core != nil {
		m.core.RecordManagerActive(m.name, false)
	}
	if m.metrics != nil {
		m.metrics.unregister()
	}

	m.logger.Info("Cache manager closed")
	return err
}
