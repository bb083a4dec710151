package cache

import "time"

// NoExpiry disables idle or time-to-live expiry. Any duration <= 0 behaves
// the same way.
const NoExpiry time.Duration = -1

// EntryView is the read-only view of a cached entity handed to cleanup
// policies.
type EntryView interface {
	Key() string
	Created() time.Time
	LastAccess() time.Time
	Hits() int64
	MaxIdleTime() time.Duration
	MaxTimeToLive() time.Duration
}

// entry wraps a payload with the bookkeeping expiry policies need.
type entry[V Cacheable] struct {
	payload    V
	key        string
	desc       descriptor
	created    time.Time
	lastAccess time.Time
	hits       int64
	maxIdle    time.Duration
	maxTTL     time.Duration

	// invalidated is set when Invalidate removes the entry. Read paths
	// never consult it.
	invalidated bool
}

func newEntry[V Cacheable](v V, now time.Time, idle, ttl time.Duration) *entry[V] {
	return &entry[V]{
		payload:    v,
		key:        v.CacheKey(),
		desc:       describe(v),
		created:    now,
		lastAccess: now,
		maxIdle:    idle,
		maxTTL:     ttl,
	}
}

// touch records a hit. Last access never moves backwards.
func (e *entry[V]) touch(now time.Time) {
	if now.After(e.lastAccess) {
		e.lastAccess = now
	}
	e.hits++
}

func (e *entry[V]) Key() string                  { return e.key }
func (e *entry[V]) Created() time.Time           { return e.created }
func (e *entry[V]) LastAccess() time.Time        { return e.lastAccess }
func (e *entry[V]) Hits() int64                  { return e.hits }
func (e *entry[V]) MaxIdleTime() time.Duration   { return e.maxIdle }
func (e *entry[V]) MaxTimeToLive() time.Duration { return e.maxTTL }

// IdleExpired reports whether e has been idle longer than its max idle
// time. Idle time is truncated to whole seconds before comparing.
func IdleExpired(e EntryView, now time.Time) bool {
	limit := e.MaxIdleTime()
	if limit <= 0 {
		return false
	}
	return now.Sub(e.LastAccess()).Truncate(time.Second) > limit
}

// TTLExpired reports whether e has lived longer than its time to live.
// Age is truncated to whole seconds before comparing.
func TTLExpired(e EntryView, now time.Time) bool {
	limit := e.MaxTimeToLive()
	if limit <= 0 {
		return false
	}
	return now.Sub(e.Created()).Truncate(time.Second) > limit
}
