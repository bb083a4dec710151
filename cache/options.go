package cache

import (
	"log/slog"

	"github.com/c360/semcache/metric"
)

// Option configures a Manager using the functional options pattern.
type Option[V Cacheable] func(*managerOptions[V])

// managerOptions holds the collaborators handed to NewManager.
// Statistics are always collected; Prometheus metrics are optional.
type managerOptions[V Cacheable] struct {
	loader      Loader[V]
	initializer Initializer[V]
	notifier    Notifier[V]
	policies    []CleanupPolicy
	logger      *slog.Logger
	metricsReg  *metric.MetricsRegistry
	clock       Clock
}

// WithLoader sets the loader consulted on misses.
func WithLoader[V Cacheable](loader Loader[V]) Option[V] {
	return func(opts *managerOptions[V]) {
		opts.loader = loader
	}
}

// WithInitializer sets the initializer run by Initialize.
func WithInitializer[V Cacheable](initializer Initializer[V]) Option[V] {
	return func(opts *managerOptions[V]) {
		opts.initializer = initializer
	}
}

// WithNotifier sets the event notifier.
func WithNotifier[V Cacheable](notifier Notifier[V]) Option[V] {
	return func(opts *managerOptions[V]) {
		opts.notifier = notifier
	}
}

// WithCleanupPolicy adds a cleanup policy. Initialize also adds the
// built-in expiry policy selected by the config defaults.
func WithCleanupPolicy[V Cacheable](policy CleanupPolicy) Option[V] {
	return func(opts *managerOptions[V]) {
		if policy != nil {
			opts.policies = append(opts.policies, policy)
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger[V Cacheable](logger *slog.Logger) Option[V] {
	return func(opts *managerOptions[V]) {
		opts.logger = logger
	}
}

// WithMetrics exports statistics as Prometheus metrics labelled with the
// manager name. If registry is nil, this option is ignored.
func WithMetrics[V Cacheable](registry *metric.MetricsRegistry) Option[V] {
	return func(opts *managerOptions[V]) {
		if registry != nil {
			opts.metricsReg = registry
		}
	}
}

// WithClock replaces the wall clock used for entity timestamps and sweeps.
func WithClock[V Cacheable](clock Clock) Option[V] {
	return func(opts *managerOptions[V]) {
		if clock != nil {
			opts.clock = clock
		}
	}
}

func applyOptions[V Cacheable](options ...Option[V]) *managerOptions[V] {
	opts := &managerOptions[V]{
		clock: SystemClock(),
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	if opts.logger == nil {
		opts.logger = slog.Default()
	}

	return opts
}
