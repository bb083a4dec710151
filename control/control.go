// Package control exposes the management surface of cache managers: a
// typed facade over one manager and an HTTP handler serving several.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/semcache/cache"
	"github.com/c360/semcache/errors"
)

// Status is a point-in-time view of one manager.
type Status struct {
	Name          string             `json:"name"`
	Size          int                `json:"size"`
	Groups        []string           `json:"groups"`
	Stats         cache.StatsSummary `json:"stats"`
	Grouped       bool               `json:"grouped"`
	AtomicGroup   bool               `json:"atomic_group"`
	IdleTime      string             `json:"default_idle_time"`
	TimeToLive    string             `json:"default_time_to_live"`
	Watermarks    cache.Watermarks   `json:"watermarks"`
	Distributable bool               `json:"distributable"`
	SyncCluster   bool               `json:"sync_cluster"`
	Policies      []string           `json:"cleanup_policies"`
	Loader        string             `json:"loader,omitempty"`
	Initializer   string             `json:"initializer,omitempty"`
	Notifier      string             `json:"notifier,omitempty"`
}

// Settings changes manager properties. Nil fields are left alone.
// Durations use time.ParseDuration syntax.
type Settings struct {
	Grouped       *bool             `json:"grouped,omitempty"`
	AtomicGroup   *bool             `json:"atomic_group,omitempty"`
	IdleTime      *string           `json:"default_idle_time,omitempty"`
	TimeToLive    *string           `json:"default_time_to_live,omitempty"`
	Watermarks    *cache.Watermarks `json:"watermarks,omitempty"`
	Distributable *bool             `json:"distributable,omitempty"`
	SyncCluster   *bool             `json:"sync_cluster,omitempty"`
}

// Controllable is what the HTTP handler needs from a managed cache.
type Controllable interface {
	Name() string
	Status() Status
	Apply(Settings) error
	FlushAll()
	FlushGroup(groupKey string)
	Cleanup(ctx context.Context) error
}

// Control is the management facade of one manager.
type Control[V cache.Cacheable] struct {
	mgr *cache.Manager[V]
}

// New wraps mgr.
func New[V cache.Cacheable](mgr *cache.Manager[V]) *Control[V] {
	return &Control[V]{mgr: mgr}
}

func (c *Control[V]) Name() string        { return c.mgr.Name() }
func (c *Control[V]) Size() int           { return c.mgr.Size() }
func (c *Control[V]) GroupKeys() []string { return c.mgr.GroupKeys() }
func (c *Control[V]) HitCounter() int64   { return c.mgr.HitCounter() }
func (c *Control[V]) MissCounter() int64  { return c.mgr.MissCounter() }
func (c *Control[V]) HitRatio() float64   { return c.mgr.HitRatio() }

func (c *Control[V]) Loader() cache.Loader[V]               { return c.mgr.Loader() }
func (c *Control[V]) SetLoader(l cache.Loader[V])           { c.mgr.SetLoader(l) }
func (c *Control[V]) Initializer() cache.Initializer[V]     { return c.mgr.Initializer() }
func (c *Control[V]) SetInitializer(i cache.Initializer[V]) { c.mgr.SetInitializer(i) }
func (c *Control[V]) Notifier() cache.Notifier[V]           { return c.mgr.Notifier() }
func (c *Control[V]) SetNotifier(n cache.Notifier[V])       { c.mgr.SetNotifier(n) }

func (c *Control[V]) CleanupPolicies() []cache.CleanupPolicy { return c.mgr.CleanupPolicies() }
func (c *Control[V]) SetCleanupPolicies(policies ...cache.CleanupPolicy) {
	c.mgr.SetCleanupPolicies(policies...)
}
func (c *Control[V]) AddCleanupPolicy(p cache.CleanupPolicy) { c.mgr.AddCleanupPolicy(p) }

func (c *Control[V]) IsGrouped() bool                    { return c.mgr.IsGrouped() }
func (c *Control[V]) SetGrouped(v bool)                  { c.mgr.SetGrouped(v) }
func (c *Control[V]) IsAtomicGroup() bool                { return c.mgr.IsAtomicGroup() }
func (c *Control[V]) SetAtomicGroup(v bool)              { c.mgr.SetAtomicGroup(v) }
func (c *Control[V]) DefaultIdleTime() time.Duration     { return c.mgr.DefaultIdleTime() }
func (c *Control[V]) SetDefaultIdleTime(d time.Duration) { c.mgr.SetDefaultIdleTime(d) }
func (c *Control[V]) DefaultTimeToLive() time.Duration   { return c.mgr.DefaultTimeToLive() }
func (c *Control[V]) SetDefaultTimeToLive(d time.Duration) {
	c.mgr.SetDefaultTimeToLive(d)
}
func (c *Control[V]) Watermarks() cache.Watermarks     { return c.mgr.Watermarks() }
func (c *Control[V]) SetWatermarks(w cache.Watermarks) { c.mgr.SetWatermarks(w) }
func (c *Control[V]) IsDistributable() bool            { return c.mgr.IsDistributable() }
func (c *Control[V]) SetDistributable(v bool)          { c.mgr.SetDistributable(v) }
func (c *Control[V]) IsSyncCluster() bool              { return c.mgr.IsSyncCluster() }
func (c *Control[V]) SetSyncCluster(v bool)            { c.mgr.SetSyncCluster(v) }

func (c *Control[V]) FlushAll()                         { c.mgr.FlushAll() }
func (c *Control[V]) FlushGroup(groupKey string)        { c.mgr.FlushGroup(groupKey) }
func (c *Control[V]) Cleanup(ctx context.Context) error { return c.mgr.Cleanup(ctx) }

// Status snapshots the manager.
func (c *Control[V]) Status() Status {
	policies := c.mgr.CleanupPolicies()
	names := make([]string, len(policies))
	for i, p := range policies {
		names[i] = p.Name()
	}

	groups := c.mgr.GroupKeys()
	if groups == nil {
		groups = []string{}
	}

	return Status{
		Name:          c.mgr.Name(),
		Size:          c.mgr.Size(),
		Groups:        groups,
		Stats:         c.mgr.Stats().Summary(),
		Grouped:       c.mgr.IsGrouped(),
		AtomicGroup:   c.mgr.IsAtomicGroup(),
		IdleTime:      formatExpiry(c.mgr.DefaultIdleTime()),
		TimeToLive:    formatExpiry(c.mgr.DefaultTimeToLive()),
		Watermarks:    c.mgr.Watermarks(),
		Distributable: c.mgr.IsDistributable(),
		SyncCluster:   c.mgr.IsSyncCluster(),
		Policies:      names,
		Loader:        typeName(c.mgr.Loader()),
		Initializer:   typeName(c.mgr.Initializer()),
		Notifier:      typeName(c.mgr.Notifier()),
	}
}

// Apply validates every field of s before changing anything.
func (c *Control[V]) Apply(s Settings) error {
	idle, err := parseExpiry(s.IdleTime, "default_idle_time")
	if err != nil {
		return err
	}
	ttl, err := parseExpiry(s.TimeToLive, "default_time_to_live")
	if err != nil {
		return err
	}
	if w := s.Watermarks; w != nil && (w.High < 0 || w.Threshold < 0 || w.Low < 0) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Control", "Apply", "watermarks cannot be negative")
	}

	if s.Grouped != nil {
		c.mgr.SetGrouped(*s.Grouped)
	}
	if s.AtomicGroup != nil {
		c.mgr.SetAtomicGroup(*s.AtomicGroup)
	}
	if idle != nil {
		c.mgr.SetDefaultIdleTime(*idle)
	}
	if ttl != nil {
		c.mgr.SetDefaultTimeToLive(*ttl)
	}
	if s.Watermarks != nil {
		c.mgr.SetWatermarks(*s.Watermarks)
	}
	if s.Distributable != nil {
		c.mgr.SetDistributable(*s.Distributable)
	}
	if s.SyncCluster != nil {
		c.mgr.SetSyncCluster(*s.SyncCluster)
	}
	return nil
}

func parseExpiry(s *string, field string) (*time.Duration, error) {
	if s == nil {
		return nil, nil
	}
	if *s == "never" {
		d := cache.NoExpiry
		return &d, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, field, err),
			"Control", "Apply", "parse duration")
	}
	return &d, nil
}

func formatExpiry(d time.Duration) string {
	if d <= 0 {
		return "never"
	}
	return d.String()
}

func typeName(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%T", v)
}
