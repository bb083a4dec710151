// Package notifier provides cache.Notifier policies: structured logging,
// fan-out, asynchronous delivery through a worker pool, and publication of
// cache events on NATS so peers can drop stale copies.
package notifier

import (
	"log/slog"

	"github.com/c360/semcache/cache"
)

// Func adapts a function to cache.Notifier.
type Func[V cache.Cacheable] func(cache.Event[V])

// NotifyCache calls f.
func (f Func[V]) NotifyCache(event cache.Event[V]) {
	if f != nil {
		f(event)
	}
}

// Multi delivers each event to every notifier in order. Nil entries are
// skipped.
type Multi[V cache.Cacheable] []cache.Notifier[V]

// NotifyCache fans event out.
func (m Multi[V]) NotifyCache(event cache.Event[V]) {
	for _, n := range m {
		if n != nil {
			n.NotifyCache(event)
		}
	}
}

// Log writes every event to a structured logger. Mutations are logged at
// info level, reads at debug level.
type Log[V cache.Cacheable] struct {
	logger *slog.Logger
}

// NewLog creates a logging notifier. A nil logger uses slog.Default().
func NewLog[V cache.Cacheable](logger *slog.Logger) *Log[V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log[V]{logger: logger.With("component", "notifier")}
}

// NotifyCache logs event.
func (l *Log[V]) NotifyCache(event cache.Event[V]) {
	attrs := []any{"cache", event.Cache, "event", event.Kind.String()}
	if event.Key != "" {
		attrs = append(attrs, "key", event.Key)
	}
	if event.GroupKey != "" {
		attrs = append(attrs, "group", event.GroupKey)
	}

	switch event.Kind {
	case cache.EventRegister:
		l.logger.Info("Entity registered", attrs...)
	case cache.EventInvalidate:
		l.logger.Info("Entity invalidated", attrs...)
	case cache.EventRefresh:
		l.logger.Info("Entity refreshed", attrs...)
	case cache.EventHitInstance, cache.EventHitGroup, cache.EventHitAll:
		l.logger.Debug("Cache hit", attrs...)
	case cache.EventMissInstance, cache.EventMissGroup, cache.EventMissAll:
		l.logger.Debug("Cache miss", attrs...)
	default:
		l.logger.Warn("Unknown cache event", attrs...)
	}
}

var (
	_ cache.Notifier[cache.Cacheable] = Func[cache.Cacheable](nil)
	_ cache.Notifier[cache.Cacheable] = Multi[cache.Cacheable](nil)
	_ cache.Notifier[cache.Cacheable] = (*Log[cache.Cacheable])(nil)
)
