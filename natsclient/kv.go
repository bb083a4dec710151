package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/retry"
)

// KVOptions configures KVStore reads
type KVOptions struct {
	Timeout      time.Duration // per-operation timeout
	MaxRetries   int           // additional attempts on transient failures
	RetryDelay   time.Duration // initial delay between attempts
	MaxRetryWait time.Duration // upper bound for the delay
}

// DefaultKVOptions returns the defaults used by the key-value loader
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout:      5 * time.Second,
		MaxRetries:   3,
		RetryDelay:   50 * time.Millisecond,
		MaxRetryWait: time.Second,
	}
}

// KVStore reads and writes raw values in a JetStream key-value bucket.
// Transient read failures are retried with backoff; a missing key is
// reported as errors.ErrKeyNotFound and never retried.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  *slog.Logger
}

// NewKVStore wraps bucket
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{
		bucket:  bucket,
		options: options,
		logger:  c.logger.With("bucket", bucket.Bucket()),
	}
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

func (kv *KVStore) retryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  kv.options.MaxRetries + 1,
		InitialDelay: kv.options.RetryDelay,
		MaxDelay:     kv.options.MaxRetryWait,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Get returns the value stored under key
func (kv *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	return retry.DoWithResult(ctx, kv.retryConfig(), func() ([]byte, error) {
		opCtx, cancel := kv.applyTimeout(ctx)
		defer cancel()

		entry, err := kv.bucket.Get(opCtx, key)
		if err != nil {
			if IsKVNotFoundError(err) {
				return nil, retry.NonRetryable(fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key))
			}
			kv.logger.Debug("KV get failed", "key", key, "error", err)
			return nil, errors.WrapTransient(err, "KVStore", "Get", fmt.Sprintf("get %s", key))
		}
		return entry.Value(), nil
	})
}

// Keys returns every key in the bucket, sorted. An empty bucket yields no
// keys and no error.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	return retry.DoWithResult(ctx, kv.retryConfig(), func() ([]string, error) {
		opCtx, cancel := kv.applyTimeout(ctx)
		defer cancel()

		lister, err := kv.bucket.ListKeys(opCtx)
		if err != nil {
			if stderrors.Is(err, jetstream.ErrNoKeysFound) {
				return nil, nil
			}
			return nil, errors.WrapTransient(err, "KVStore", "Keys", "list keys")
		}
		defer func() { _ = lister.Stop() }()

		var keys []string
		for key := range lister.Keys() {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		return keys, nil
	})
}

// Put creates or updates a key (last writer wins)
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, errors.WrapTransient(err, "KVStore", "Put", fmt.Sprintf("put %s", key))
	}
	kv.logger.Debug("KV put", "key", key, "revision", rev)
	return rev, nil
}

// Delete removes a key from the bucket
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if IsKVNotFoundError(err) {
			return fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key)
		}
		return errors.WrapTransient(err, "KVStore", "Delete", fmt.Sprintf("delete %s", key))
	}
	return nil
}

// IsKVNotFoundError checks if error indicates key not found
func IsKVNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrKeyNotFound) ||
		stderrors.Is(err, jetstream.ErrKeyDeleted) ||
		stderrors.Is(err, errors.ErrKeyNotFound) {
		return true
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "key not found") ||
		strings.Contains(errMsg, "10037")
}
