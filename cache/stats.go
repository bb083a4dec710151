package cache

import (
	"sync/atomic"
	"time"
)

// Statistics tracks manager activity. Counters only grow; there is no reset.
type Statistics struct {
	hits          int64
	misses        int64
	registrations int64
	invalidations int64
	evictions     int64
	loads         int64
	loadErrors    int64

	startTime time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

func (s *Statistics) hit()             { atomic.AddInt64(&s.hits, 1) }
func (s *Statistics) miss()            { atomic.AddInt64(&s.misses, 1) }
func (s *Statistics) register(n int)   { atomic.AddInt64(&s.registrations, int64(n)) }
func (s *Statistics) invalidate(n int) { atomic.AddInt64(&s.invalidations, int64(n)) }
func (s *Statistics) evict(n int)      { atomic.AddInt64(&s.evictions, int64(n)) }
func (s *Statistics) load()            { atomic.AddInt64(&s.loads, 1) }
func (s *Statistics) loadError()       { atomic.AddInt64(&s.loadErrors, 1) }

// Hits returns the total number of cache hits.
func (s *Statistics) Hits() int64 {
	return atomic.LoadInt64(&s.hits)
}

// Misses returns the total number of cache misses.
func (s *Statistics) Misses() int64 {
	return atomic.LoadInt64(&s.misses)
}

// Registrations returns how many entities entered the cache.
func (s *Statistics) Registrations() int64 {
	return atomic.LoadInt64(&s.registrations)
}

// Invalidations returns how many entities were removed by Invalidate.
func (s *Statistics) Invalidations() int64 {
	return atomic.LoadInt64(&s.invalidations)
}

// Evictions returns how many entities cleanup policies removed.
func (s *Statistics) Evictions() int64 {
	return atomic.LoadInt64(&s.evictions)
}

// Loads returns how many loader calls the manager made.
func (s *Statistics) Loads() int64 {
	return atomic.LoadInt64(&s.loads)
}

// LoadErrors returns how many loader calls failed.
func (s *Statistics) LoadErrors() int64 {
	return atomic.LoadInt64(&s.loadErrors)
}

// HitRatio returns hits/(hits+misses), 0 when there were no requests.
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	misses := s.Misses()
	total := hits + misses

	if total == 0 {
		return 0.0
	}

	return float64(hits) / float64(total)
}

// Uptime returns how long the statistics have been collected.
func (s *Statistics) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// StatsSummary is a snapshot of all statistics.
type StatsSummary struct {
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	Registrations int64         `json:"registrations"`
	Invalidations int64         `json:"invalidations"`
	Evictions     int64         `json:"evictions"`
	Loads         int64         `json:"loads"`
	LoadErrors    int64         `json:"load_errors"`
	HitRatio      float64       `json:"hit_ratio"`
	Uptime        time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Hits:          s.Hits(),
		Misses:        s.Misses(),
		Registrations: s.Registrations(),
		Invalidations: s.Invalidations(),
		Evictions:     s.Evictions(),
		Loads:         s.Loads(),
		LoadErrors:    s.LoadErrors(),
		HitRatio:      s.HitRatio(),
		Uptime:        s.Uptime(),
	}
}
