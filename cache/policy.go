package cache

import (
	"cmp"
	"slices"
	"sync/atomic"
	"time"
)

// CleanupPolicy is an eviction sweep. The manager calls Cleanup under its
// exclusive lock every Frequency; a Frequency <= 0 uses the configured
// cleanup interval.
type CleanupPolicy interface {
	Name() string
	Frequency() time.Duration
	// Cleanup removes members from groups and returns how many it removed.
	Cleanup(groups GroupSet, now time.Time) int
}

// GroupSet is the manager's group map as seen by a cleanup policy.
type GroupSet interface {
	// Groups returns a snapshot; dropping or removing while ranging over it
	// is safe.
	Groups() []GroupView
	// Drop removes a whole group.
	Drop(g GroupView)
}

// GroupView is one group as seen by a cleanup policy.
type GroupView interface {
	Key() string
	Scoped() bool
	Atomic() bool
	Size() int
	Hits() int64
	Members() []EntryView
	Remove(key string) bool
}

// sweep applies expired to every member. An expired member of an atomic
// group drops the whole group and stops evaluating it. Groups left empty
// are dropped.
func sweep(groups GroupSet, now time.Time, expired func(EntryView, time.Time) bool) int {
	evicted := 0
	for _, g := range groups.Groups() {
		for _, e := range g.Members() {
			if !expired(e, now) {
				continue
			}
			if g.Atomic() {
				evicted += g.Size()
				groups.Drop(g)
				break
			}
			if g.Remove(e.Key()) {
				evicted++
			}
		}
		if !g.Atomic() && g.Size() == 0 {
			groups.Drop(g)
		}
	}
	return evicted
}

// IdleTimePolicy evicts members idle longer than their max idle time.
type IdleTimePolicy struct {
	frequency time.Duration
}

// NewIdleTimePolicy creates an idle-time policy sweeping every frequency.
func NewIdleTimePolicy(frequency time.Duration) *IdleTimePolicy {
	return &IdleTimePolicy{frequency: frequency}
}

func (p *IdleTimePolicy) Name() string             { return "idle-time" }
func (p *IdleTimePolicy) Frequency() time.Duration { return p.frequency }

func (p *IdleTimePolicy) Cleanup(groups GroupSet, now time.Time) int {
	return sweep(groups, now, IdleExpired)
}

// TimeToLivePolicy evicts members older than their time to live.
type TimeToLivePolicy struct {
	frequency time.Duration
}

// NewTimeToLivePolicy creates a time-to-live policy sweeping every frequency.
func NewTimeToLivePolicy(frequency time.Duration) *TimeToLivePolicy {
	return &TimeToLivePolicy{frequency: frequency}
}

func (p *TimeToLivePolicy) Name() string             { return "time-to-live" }
func (p *TimeToLivePolicy) Frequency() time.Duration { return p.frequency }

func (p *TimeToLivePolicy) Cleanup(groups GroupSet, now time.Time) int {
	return sweep(groups, now, TTLExpired)
}

// ExpiredPolicy evicts members that are idle-expired or TTL-expired.
type ExpiredPolicy struct {
	frequency time.Duration
}

// NewExpiredPolicy creates a combined policy sweeping every frequency.
func NewExpiredPolicy(frequency time.Duration) *ExpiredPolicy {
	return &ExpiredPolicy{frequency: frequency}
}

func (p *ExpiredPolicy) Name() string             { return "expired" }
func (p *ExpiredPolicy) Frequency() time.Duration { return p.frequency }

func (p *ExpiredPolicy) Cleanup(groups GroupSet, now time.Time) int {
	return sweep(groups, now, func(e EntryView, now time.Time) bool {
		return IdleExpired(e, now) || TTLExpired(e, now)
	})
}

// RankOrder selects how RankPolicy orders members, lowest rank first.
type RankOrder int

const (
	// RankByRecency ranks by last access (least recently used first).
	RankByRecency RankOrder = iota
	// RankByFrequency ranks by hit count (least frequently used first).
	RankByFrequency
	// RankByInsertion ranks by creation time (oldest first).
	RankByInsertion
)

func (o RankOrder) String() string {
	switch o {
	case RankByRecency:
		return "recency"
	case RankByFrequency:
		return "frequency"
	case RankByInsertion:
		return "insertion"
	default:
		return "unknown"
	}
}

// RankPolicy ranks the members of every group. With MaxGroupSize > 0 it
// trims each group down to that size, removing the lowest-ranked members;
// an oversized atomic group is dropped whole. With MaxGroupSize == 0 it
// only observes.
type RankPolicy struct {
	Order        RankOrder
	MaxGroupSize int
	Every        time.Duration

	observed atomic.Int64
}

// NewRankPolicy creates a rank policy.
func NewRankPolicy(order RankOrder, maxGroupSize int, every time.Duration) *RankPolicy {
	return &RankPolicy{Order: order, MaxGroupSize: maxGroupSize, Every: every}
}

func (p *RankPolicy) Name() string             { return "rank-" + p.Order.String() }
func (p *RankPolicy) Frequency() time.Duration { return p.Every }

// Observed returns how many members the last sweep ranked.
func (p *RankPolicy) Observed() int64 { return p.observed.Load() }

func (p *RankPolicy) Cleanup(groups GroupSet, _ time.Time) int {
	var observed int64
	evicted := 0
	for _, g := range groups.Groups() {
		members := p.Rank(g.Members())
		observed += int64(len(members))

		if p.MaxGroupSize <= 0 || len(members) <= p.MaxGroupSize {
			continue
		}
		if g.Atomic() {
			evicted += g.Size()
			groups.Drop(g)
			continue
		}
		for _, e := range members[:len(members)-p.MaxGroupSize] {
			if g.Remove(e.Key()) {
				evicted++
			}
		}
	}
	p.observed.Store(observed)
	return evicted
}

// Rank sorts members in place, lowest rank first, and returns them.
// Ties are broken by key.
func (p *RankPolicy) Rank(members []EntryView) []EntryView {
	slices.SortFunc(members, func(a, b EntryView) int {
		var c int
		switch p.Order {
		case RankByFrequency:
			c = cmp.Compare(a.Hits(), b.Hits())
			if c == 0 {
				c = a.LastAccess().Compare(b.LastAccess())
			}
		case RankByInsertion:
			c = a.Created().Compare(b.Created())
		default:
			c = a.LastAccess().Compare(b.LastAccess())
		}
		if c == 0 {
			c = cmp.Compare(a.Key(), b.Key())
		}
		return c
	})
	return members
}
