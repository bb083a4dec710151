package cache

import (
	"context"
	"fmt"
	"time"
)

// Loader fetches entities from the persistence source on a miss.
type Loader[V Cacheable] interface {
	// FetchEntity returns the entity for key, or found=false when the
	// source has none.
	FetchEntity(ctx context.Context, key string) (v V, found bool, err error)

	// FetchAll returns every entity of the source.
	FetchAll(ctx context.Context) ([]V, error)
}

// GroupLoader is a Loader that understands groups. Group reads and atomic
// group fills require it.
type GroupLoader[V Cacheable] interface {
	Loader[V]

	// FetchGroups lists the group keys known to the source.
	FetchGroups(ctx context.Context) ([]string, error)

	// FetchByGroup returns every member of a group.
	FetchByGroup(ctx context.Context, groupKey string) ([]V, error)
}

// Initializer produces the entities registered when a manager starts.
// A nil Initializer means the cache fills lazily.
type Initializer[V Cacheable] interface {
	Init(ctx context.Context, loader Loader[V]) ([]V, error)
}

// Notifier receives cache events. Calls are fire-and-forget and always made
// outside the manager lock. A nil Notifier suppresses events.
type Notifier[V Cacheable] interface {
	NotifyCache(event Event[V])
}

// EventKind tags a cache event.
type EventKind int

const (
	EventRegister EventKind = iota
	EventInvalidate
	EventRefresh
	EventHitInstance
	EventMissInstance
	EventHitGroup
	EventMissGroup
	EventHitAll
	EventMissAll
)

var eventKindNames = [...]string{
	EventRegister:     "register",
	EventInvalidate:   "invalidate",
	EventRefresh:      "refresh",
	EventHitInstance:  "cacheHitInstance",
	EventMissInstance: "cacheMissInstance",
	EventHitGroup:     "cacheHitGroup",
	EventMissGroup:    "cacheMissGroup",
	EventHitAll:       "cacheHitAll",
	EventMissAll:      "cacheMissAll",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return eventKindNames[k]
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, error) {
	for i, name := range eventKindNames {
		if name == s {
			return EventKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(eventKindNames) {
		return nil, fmt.Errorf("unknown event kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *EventKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEventKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event describes one cache operation. Entity is the zero value for events
// that carry only a key, such as a group read.
type Event[V Cacheable] struct {
	Kind     EventKind `json:"kind"`
	Cache    string    `json:"cache"`
	Key      string    `json:"key,omitempty"`
	GroupKey string    `json:"group_key,omitempty"`
	Entity   V         `json:"entity,omitempty"`
	Time     time.Time `json:"time"`
}
