package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/c360/semcache/errors"
)

// MockNATSClient is an in-memory publish/subscribe client matching the
// Publish and Subscribe signatures of natsclient.Client.
type MockNATSClient struct {
	mu            sync.RWMutex
	messages      map[string][][]byte
	subscriptions map[string][]func(context.Context, []byte)
	failPublish   error
	closed        bool
}

// NewMockNATSClient creates a new mock NATS client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages:      make(map[string][][]byte),
		subscriptions: make(map[string][]func(context.Context, []byte)),
	}
}

// FailPublish makes Publish return err; nil restores normal behaviour.
func (c *MockNATSClient) FailPublish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failPublish = err
}

// Publish stores data and delivers it to subscribers of subject.
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	if c.failPublish != nil {
		err := c.failPublish
		c.mu.Unlock()
		return err
	}

	c.messages[subject] = append(c.messages[subject], data)
	handlers := slices.Clone(c.subscriptions[subject])
	c.mu.Unlock()

	// Handlers run outside the lock so they may publish.
	for _, handler := range handlers {
		handler(ctx, data)
	}
	return nil
}

// Subscribe registers handler for subject.
func (c *MockNATSClient) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}
	c.subscriptions[subject] = append(c.subscriptions[subject], handler)
	return nil
}

// GetMessages returns a copy of the messages published on subject.
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.messages[subject])
}

// GetMessageCount returns the number of messages on a subject.
func (c *MockNATSClient) GetMessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// Close closes the mock client.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// MockKVStore is an in-memory bucket matching the loader.Bucket interface.
type MockKVStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	err   error
	gets  int
	lists int
}

// NewMockKVStore creates a new mock KV store.
func NewMockKVStore() *MockKVStore {
	return &MockKVStore{
		data: make(map[string][]byte),
	}
}

// FailWith makes reads return err; nil restores normal behaviour.
func (kv *MockKVStore) FailWith(err error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.err = err
}

// Put stores a value.
func (kv *MockKVStore) Put(key string, value []byte) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = slices.Clone(value)
}

// Get returns a copy of the value, or errors.ErrKeyNotFound.
func (kv *MockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.gets++

	if kv.err != nil {
		return nil, kv.err
	}
	val, ok := kv.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, errors.ErrKeyNotFound)
	}
	return slices.Clone(val), nil
}

// Keys returns every key, sorted.
func (kv *MockKVStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.lists++

	if kv.err != nil {
		return nil, kv.err
	}
	keys := make([]string, 0, len(kv.data))
	for k := range kv.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// Gets returns how many times Get ran.
func (kv *MockKVStore) Gets() int {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return kv.gets
}

// WaitForMessageCount waits for a specific number of messages (with timeout).
func WaitForMessageCount(t *testing.T, client *MockNATSClient, subject string, count int, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			got := client.GetMessageCount(subject)
			t.Fatalf("timeout waiting for %d messages on subject %s (got %d)", count, subject, got)
			return
		case <-ticker.C:
			if client.GetMessageCount(subject) >= count {
				return
			}
		}
	}
}
