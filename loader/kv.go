package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/c360/semcache/cache"
	"github.com/c360/semcache/errors"
)

// Bucket is the read side of a key-value store. natsclient.KVStore
// satisfies it. Get reports a missing key with errors.ErrKeyNotFound.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Keys(ctx context.Context) ([]string, error)
}

// KV loads JSON payloads stored one per key. Keys outside the configured
// prefix are ignored. Group reads scan the bucket and filter on
// cache.GroupCacheable, so they need a grouped payload type.
type KV[V cache.Cacheable] struct {
	bucket      Bucket
	prefix      string
	decode      func([]byte) (V, error)
	parallelism int
	logger      *slog.Logger
}

// KVOption configures a KV loader.
type KVOption[V cache.Cacheable] func(*KV[V])

// WithPrefix stores entity key k under bucket key prefix+k.
func WithPrefix[V cache.Cacheable](prefix string) KVOption[V] {
	return func(l *KV[V]) {
		l.prefix = prefix
	}
}

// WithDecoder replaces JSON decoding.
func WithDecoder[V cache.Cacheable](decode func([]byte) (V, error)) KVOption[V] {
	return func(l *KV[V]) {
		if decode != nil {
			l.decode = decode
		}
	}
}

// WithParallelism bounds concurrent Gets during a scan. Defaults to 8.
func WithParallelism[V cache.Cacheable](n int) KVOption[V] {
	return func(l *KV[V]) {
		if n > 0 {
			l.parallelism = n
		}
	}
}

// WithKVLogger sets the logger. Defaults to slog.Default().
func WithKVLogger[V cache.Cacheable](logger *slog.Logger) KVOption[V] {
	return func(l *KV[V]) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewKV creates a loader over bucket.
func NewKV[V cache.Cacheable](bucket Bucket, opts ...KVOption[V]) *KV[V] {
	l := &KV[V]{
		bucket:      bucket,
		decode:      decodeJSON[V],
		parallelism: 8,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "loader.KV", "prefix", l.prefix)
	return l
}

func decodeJSON[V cache.Cacheable](data []byte) (V, error) {
	var v V
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return v, errors.ErrInvalidData
	}
	err := json.Unmarshal(data, &v)
	return v, err
}

// FetchEntity reads and decodes the value stored for key. A missing key is
// found=false with no error.
func (l *KV[V]) FetchEntity(ctx context.Context, key string) (V, bool, error) {
	var zero V
	v, found, err := l.read(ctx, l.prefix+key)
	if err != nil {
		return zero, false, errors.Wrap(err, "KV", "FetchEntity", fmt.Sprintf("read %s", key))
	}
	return v, found, nil
}

func (l *KV[V]) read(ctx context.Context, bucketKey string) (V, bool, error) {
	var zero V
	data, err := l.bucket.Get(ctx, bucketKey)
	if err != nil {
		if errors.Is(err, errors.ErrKeyNotFound) {
			return zero, false, nil
		}
		return zero, false, err
	}

	v, err := l.decode(data)
	if err != nil {
		return zero, false, errors.WrapInvalid(
			fmt.Errorf("%w: %s: %v", errors.ErrParsingFailed, bucketKey, err), "KV", "read", "decode")
	}
	return v, true, nil
}

// FetchAll decodes every value under the prefix, in key order. Keys
// deleted during the scan are skipped.
func (l *KV[V]) FetchAll(ctx context.Context) ([]V, error) {
	all, err := l.scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "KV", "FetchAll", "scan")
	}
	return all, nil
}

func (l *KV[V]) scan(ctx context.Context) ([]V, error) {
	keys, err := l.bucket.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys = slices.DeleteFunc(keys, func(k string) bool { return !strings.HasPrefix(k, l.prefix) })

	values := make([]V, len(keys))
	found := make([]bool, len(keys))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(l.parallelism)
	for i, key := range keys {
		eg.Go(func() error {
			v, ok, err := l.read(egCtx, key)
			if err != nil {
				return err
			}
			values[i], found[i] = v, ok
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]V, 0, len(values))
	for i, v := range values {
		if found[i] {
			out = append(out, v)
		} else {
			l.logger.Debug("Key vanished during scan", "key", keys[i])
		}
	}
	return out, nil
}

// FetchGroups lists the distinct group keys of the stored payloads, sorted.
func (l *KV[V]) FetchGroups(ctx context.Context) ([]string, error) {
	if err := l.requireGroups("FetchGroups"); err != nil {
		return nil, err
	}
	all, err := l.scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "KV", "FetchGroups", "scan")
	}

	seen := make(map[string]struct{})
	var groups []string
	for _, v := range all {
		key := any(v).(cache.GroupCacheable).GroupKey()
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			groups = append(groups, key)
		}
	}
	slices.Sort(groups)
	return groups, nil
}

// FetchByGroup returns the stored payloads whose group key is groupKey.
func (l *KV[V]) FetchByGroup(ctx context.Context, groupKey string) ([]V, error) {
	if err := l.requireGroups("FetchByGroup"); err != nil {
		return nil, err
	}
	all, err := l.scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "KV", "FetchByGroup", "scan")
	}
	return slices.DeleteFunc(all, func(v V) bool {
		return any(v).(cache.GroupCacheable).GroupKey() != groupKey
	}), nil
}

func (l *KV[V]) requireGroups(op string) error {
	// A nil pointer payload still carries its method set.
	var zero V
	if _, ok := any(zero).(cache.GroupCacheable); ok {
		return nil
	}
	return errors.WrapInvalid(errors.ErrNotGroupLoader, "KV", op, "payload has no group key")
}
