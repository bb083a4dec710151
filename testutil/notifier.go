package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/c360/semcache/cache"
)

// RecordingNotifier keeps every event it receives.
type RecordingNotifier[V cache.Cacheable] struct {
	mu     sync.Mutex
	events []cache.Event[V]
}

// NotifyCache records the event.
func (n *RecordingNotifier[V]) NotifyCache(event cache.Event[V]) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

// Events returns a copy of the recorded events.
func (n *RecordingNotifier[V]) Events() []cache.Event[V] {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]cache.Event[V], len(n.events))
	copy(out, n.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (n *RecordingNotifier[V]) Kinds() []cache.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]cache.EventKind, len(n.events))
	for i, e := range n.events {
		out[i] = e.Kind
	}
	return out
}

// Count returns how many events of kind were recorded.
func (n *RecordingNotifier[V]) Count(kind cache.EventKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	count := 0
	for _, e := range n.events {
		if e.Kind == kind {
			count++
		}
	}
	return count
}

// Reset drops all recorded events.
func (n *RecordingNotifier[V]) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

// WaitForCount waits until at least count events of kind were recorded.
func (n *RecordingNotifier[V]) WaitForCount(t *testing.T, kind cache.EventKind, count int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if n.Count(kind) >= count {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d %s events (got %d)", count, kind, n.Count(kind))
}
