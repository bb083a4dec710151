package cache

import (
	"slices"
	"time"
)

// Loader returns the configured loader.
func (m *Manager[V]) Loader() Loader[V] {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return m.loader
}

// SetLoader replaces the loader.
func (m *Manager[V]) SetLoader(loader Loader[V]) {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.loader = loader
}

// Initializer returns the configured initializer.
func (m *Manager[V]) Initializer() Initializer[V] {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return m.initializer
}

// SetInitializer replaces the initializer. It only matters before Initialize.
func (m *Manager[V]) SetInitializer(initializer Initializer[V]) {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.initializer = initializer
}

// Notifier returns the configured notifier.
func (m *Manager[V]) Notifier() Notifier[V] {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return m.notifier
}

// SetNotifier replaces the notifier; nil suppresses events.
func (m *Manager[V]) SetNotifier(notifier Notifier[V]) {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.notifier = notifier
}

// CleanupPolicies returns a copy of the cleanup policies.
func (m *Manager[V]) CleanupPolicies() []CleanupPolicy {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return slices.Clone(m.policies)
}

// SetCleanupPolicies replaces the policies run by Cleanup. Schedulers
// already started by Initialize keep running their own policy.
func (m *Manager[V]) SetCleanupPolicies(policies ...CleanupPolicy) {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.policies = slices.DeleteFunc(slices.Clone(policies), func(p CleanupPolicy) bool { return p == nil })
}

// AddCleanupPolicy appends a policy run by Cleanup.
func (m *Manager[V]) AddCleanupPolicy(policy CleanupPolicy) {
	if policy == nil {
		return
	}
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.policies = append(m.policies, policy)
}

// IsGrouped reports whether the manager holds group-aware entities.
func (m *Manager[V]) IsGrouped() bool {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return m.cfg.Grouped
}

// SetGrouped changes the grouped flag.
func (m *Manager[V]) SetGrouped(grouped bool) {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.cfg.Grouped = grouped
}

// IsAtomicGroup reports whether new groups are atomic.
func (m *Manager[V]) IsAtomicGroup() bool {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return m.cfg.AtomicGroup
}

// SetAtomicGroup changes the atomic flag for groups created afterwards.
func (m *Manager[V]) SetAtomicGroup(atomic bool) {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.cfg.AtomicGroup = atomic
}

// DefaultIdleTime returns the max idle time given to new entities.
func (m *Manager[V]) DefaultIdleTime() time.Duration {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return m.cfg.DefaultIdleTime
}

// SetDefaultIdleTime changes the max idle time given to new entities.
func (m *Manager[V]) SetDefaultIdleTime(d time.Duration) {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.cfg.DefaultIdleTime = d
}

// DefaultTimeToLive returns the time to live given to new entities.
func (m *Manager[V]) DefaultTimeToLive() time.Duration {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return m.cfg.DefaultTimeToLive
}

// SetDefaultTimeToLive changes the time to live given to new entities.
func (m *Manager[V]) SetDefaultTimeToLive(d time.Duration) {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.cfg.DefaultTimeToLive = d
}

// Watermarks are stored for management consoles; nothing evicts on them.
type Watermarks struct {
	High      int `json:"high"`
	Threshold int `json:"threshold"`
	Low       int `json:"low"`
}

// Watermarks returns the stored watermarks.
func (m *Manager[V]) Watermarks() Watermarks {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return Watermarks{High: m.cfg.HighWaterMark, Threshold: m.cfg.Threshold, Low: m.cfg.LowWaterMark}
}

// SetWatermarks stores new watermarks.
func (m *Manager[V]) SetWatermarks(w Watermarks) {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.cfg.HighWaterMark = w.High
	m.cfg.Threshold = w.Threshold
	m.cfg.LowWaterMark = w.Low
}

// IsDistributable reports the distributable flag.
func (m *Manager[V]) IsDistributable() bool {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return m.cfg.Distributable
}

// SetDistributable sets the distributable flag.
func (m *Manager[V]) SetDistributable(v bool) {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.cfg.Distributable = v
}

// IsSyncCluster reports the sync-cluster flag.
func (m *Manager[V]) IsSyncCluster() bool {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return m.cfg.SyncCluster
}

// SetSyncCluster sets the sync-cluster flag.
func (m *Manager[V]) SetSyncCluster(v bool) {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	m.cfg.SyncCluster = v
}

// Config returns a copy of the current settings.
func (m *Manager[V]) Config() Config {
	m.pmu.RLock()
	defer m.pmu.RUnlock()
	return m.cfg
}
