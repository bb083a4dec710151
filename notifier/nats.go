package notifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/semcache/cache"
	"github.com/c360/semcache/errors"
)

// DefaultSubjectPrefix is the subject prefix cache events are published
// under. The cache name is appended.
const DefaultSubjectPrefix = "semcache.events"

// Publisher is the publishing side of natsclient.Client.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subscriber is the subscribing side of natsclient.Client.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// Message is the wire form of a cache event.
type Message struct {
	Origin   string          `json:"origin"`
	Kind     cache.EventKind `json:"kind"`
	Cache    string          `json:"cache"`
	Key      string          `json:"key,omitempty"`
	GroupKey string          `json:"group_key,omitempty"`
	Entity   json.RawMessage `json:"entity,omitempty"`
	Time     time.Time       `json:"time"`
}

// Subject returns the subject events of cacheName are published on.
func Subject(prefix, cacheName string) string {
	return prefix + "." + cacheName
}

type natsConfig struct {
	prefix  string
	origin  string
	kinds   []cache.EventKind
	timeout time.Duration
	logger  *slog.Logger
}

// NATSOption configures the NATS notifier and listener.
type NATSOption func(*natsConfig)

// WithSubjectPrefix replaces DefaultSubjectPrefix.
func WithSubjectPrefix(prefix string) NATSOption {
	return func(c *natsConfig) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithOrigin sets the id stamped on published messages. Defaults to a
// random UUID.
func WithOrigin(origin string) NATSOption {
	return func(c *natsConfig) {
		if origin != "" {
			c.origin = origin
		}
	}
}

// WithKinds limits which event kinds are published. Defaults to register,
// invalidate and refresh.
func WithKinds(kinds ...cache.EventKind) NATSOption {
	return func(c *natsConfig) {
		c.kinds = kinds
	}
}

// WithPublishTimeout bounds each publish. Defaults to 2s.
func WithPublishTimeout(d time.Duration) NATSOption {
	return func(c *natsConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithNATSLogger sets the logger.
func WithNATSLogger(logger *slog.Logger) NATSOption {
	return func(c *natsConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newNATSConfig(opts []NATSOption) natsConfig {
	cfg := natsConfig{
		prefix:  DefaultSubjectPrefix,
		origin:  uuid.NewString(),
		kinds:   []cache.EventKind{cache.EventRegister, cache.EventInvalidate, cache.EventRefresh},
		timeout: 2 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NATS publishes cache events as JSON Messages. Publishing is synchronous;
// wrap it in Async to keep it off the read path.
type NATS[V cache.Cacheable] struct {
	pub    Publisher
	cfg    natsConfig
	logger *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// NewNATS creates a NATS notifier.
func NewNATS[V cache.Cacheable](pub Publisher, opts ...NATSOption) *NATS[V] {
	cfg := newNATSConfig(opts)
	return &NATS[V]{
		pub:    pub,
		cfg:    cfg,
		logger: cfg.logger.With("component", "notifier.NATS", "origin", cfg.origin),
	}
}

// Origin returns the id stamped on every published message.
func (n *NATS[V]) Origin() string { return n.cfg.origin }

// Published returns how many events were published.
func (n *NATS[V]) Published() int64 { return n.published.Load() }

// Failed returns how many publishes failed.
func (n *NATS[V]) Failed() int64 { return n.failed.Load() }

// NotifyCache publishes event when its kind is selected. Failures are
// logged and counted.
func (n *NATS[V]) NotifyCache(event cache.Event[V]) {
	if !slices.Contains(n.cfg.kinds, event.Kind) {
		return
	}

	msg := Message{
		Origin:   n.cfg.origin,
		Kind:     event.Kind,
		Cache:    event.Cache,
		Key:      event.Key,
		GroupKey: event.GroupKey,
		Time:     event.Time,
	}
	if any(event.Entity) != nil {
		entity, err := json.Marshal(event.Entity)
		if err != nil {
			n.failed.Add(1)
			n.logger.Warn("Failed to encode cache event", "key", event.Key, "error", err)
			return
		}
		msg.Entity = entity
	}

	data, err := json.Marshal(msg)
	if err != nil {
		n.failed.Add(1)
		n.logger.Warn("Failed to encode cache event", "key", event.Key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.timeout)
	defer cancel()

	subject := Subject(n.cfg.prefix, event.Cache)
	if err := n.pub.Publish(ctx, subject, data); err != nil {
		n.failed.Add(1)
		n.logger.Warn("Failed to publish cache event", "subject", subject, "event", event.Kind.String(), "error", err)
		return
	}
	n.published.Add(1)
}

// Target is the part of a cache.Manager a Listener acts on.
type Target[V cache.Cacheable] interface {
	Name() string
	Peek(key string) (V, bool)
	Invalidate(ctx context.Context, v V) error
	IsSyncCluster() bool
}

// Listener applies invalidations published by peers to a local manager.
// A peer's invalidate or refresh drops the local copy so the next read
// loads it again. Messages from the local origin are ignored, as is
// everything while the manager is not set to sync with its cluster.
type Listener[V cache.Cacheable] struct {
	sub    Subscriber
	target Target[V]
	cfg    natsConfig
	logger *slog.Logger

	applied atomic.Int64
	ignored atomic.Int64
}

// NewListener creates a listener for target. Pass the local NATS
// notifier's origin with WithOrigin so its own echoes are ignored.
func NewListener[V cache.Cacheable](sub Subscriber, target Target[V], opts ...NATSOption) *Listener[V] {
	cfg := newNATSConfig(opts)
	return &Listener[V]{
		sub:    sub,
		target: target,
		cfg:    cfg,
		logger: cfg.logger.With("component", "notifier.Listener", "cache", target.Name()),
	}
}

// Start subscribes to the target's event subject.
func (l *Listener[V]) Start(ctx context.Context) error {
	subject := Subject(l.cfg.prefix, l.target.Name())
	if err := l.sub.Subscribe(ctx, subject, l.handle); err != nil {
		return errors.Wrap(err, "Listener", "Start", "subscribe "+subject)
	}
	l.logger.Info("Listening for peer cache events", "subject", subject)
	return nil
}

// Applied returns how many peer messages invalidated a local entity.
func (l *Listener[V]) Applied() int64 { return l.applied.Load() }

// Ignored returns how many peer messages were skipped.
func (l *Listener[V]) Ignored() int64 { return l.ignored.Load() }

func (l *Listener[V]) handle(ctx context.Context, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		l.ignored.Add(1)
		l.logger.Warn("Dropping malformed cache event", "error", err)
		return
	}

	if msg.Origin == l.cfg.origin ||
		msg.Cache != l.target.Name() ||
		(msg.Kind != cache.EventInvalidate && msg.Kind != cache.EventRefresh) ||
		!l.target.IsSyncCluster() {
		l.ignored.Add(1)
		return
	}

	// Only cached entities are invalidated, which stops peers from echoing
	// an invalidation back and forth.
	v, ok := l.target.Peek(msg.Key)
	if !ok {
		l.ignored.Add(1)
		return
	}
	if err := l.target.Invalidate(ctx, v); err != nil {
		l.logger.Warn("Failed to apply peer invalidation", "key", msg.Key, "origin", msg.Origin, "error", err)
		return
	}
	l.applied.Add(1)
	l.logger.Debug("Applied peer invalidation", "key", msg.Key, "origin", msg.Origin)
}

var _ Target[cache.Cacheable] = (*cache.Manager[cache.Cacheable])(nil)
