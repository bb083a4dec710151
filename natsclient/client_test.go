package natsclient

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/metric"
)

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status   ConnectionStatus
		expected string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())

	status := client.GetStatus()
	assert.Equal(t, StatusDisconnected, status.Status)
	assert.True(t, status.LastFailureTime.IsZero())
	assert.Zero(t, status.RTT)
}

func TestNewClient_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{"zero threshold", WithCircuitBreakerThreshold(0)},
		{"sub-second backoff", WithMaxBackoff(100 * time.Millisecond)},
		{"zero timeout", WithTimeout(0)},
		{"negative reconnect wait", WithReconnectWait(-time.Second)},
		{"zero ping interval", WithPingInterval(0)},
		{"zero drain timeout", WithDrainTimeout(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", tt.opt)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(3))
	require.NoError(t, err)

	client.recordFailure()
	client.recordFailure()
	assert.Equal(t, StatusDisconnected, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(3), client.Failures())
	assert.Equal(t, 2*time.Second, client.Backoff())
	assert.False(t, client.GetStatus().LastFailureTime.IsZero())

	for range 3 {
		client.recordFailure()
	}
	assert.Equal(t, 4*time.Second, client.Backoff(), "each full round doubles the backoff")
}

func TestCircuitBreaker_BackoffCapped(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(1), WithMaxBackoff(3*time.Second))
	require.NoError(t, err)

	for range 4 {
		client.recordFailure()
	}
	assert.Equal(t, 3*time.Second, client.Backoff())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)

	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestCircuitBreaker_HalfOpensAfterBackoff(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)

	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	assert.Eventually(t, func() bool {
		return client.Status() == StatusDisconnected
	}, 3*time.Second, 20*time.Millisecond)
}

func TestClient_RequiresConnection(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	ctx := context.Background()

	err = client.Publish(ctx, "semcache.events", []byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.True(t, errors.IsTransient(err))

	err = client.Subscribe(ctx, "semcache.events", func(context.Context, []byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.JetStream()
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.GetKeyValueBucket(ctx, "letters")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "letters"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_CircuitOpenFailsFast(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)
	client.recordFailure()

	ctx := context.Background()
	assert.ErrorIs(t, client.Publish(ctx, "semcache.events", nil), ErrCircuitOpen)
	assert.ErrorIs(t, client.Connect(ctx), ErrCircuitOpen)
	_, err = client.GetKeyValueBucket(ctx, "letters")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestClient_ConnectFailure(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1",
		WithTimeout(200*time.Millisecond), WithMaxReconnects(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, int32(1), client.Failures())
}

func TestClient_CloseIdempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCredentials("user", "secret"), WithToken("t"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Close(ctx))
	require.NoError(t, client.Close(ctx))
	assert.Empty(t, client.username)
	assert.Empty(t, client.password)
	assert.Empty(t, client.token)

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestClient_WaitForConnectionTimeout(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = client.WaitForConnection(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	client, err := NewClient("nats://localhost:4222",
		WithMetrics(registry), WithCircuitBreakerThreshold(1))
	require.NoError(t, err)

	client.recordFailure()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				values[mf.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(StatusCircuitOpen), values["semcache_nats_connection_status"])
	assert.Equal(t, 1.0, values["semcache_nats_failures_total"])

	_, err = NewClient("nats://localhost:4222", WithMetrics(registry))
	require.Error(t, err, "a second client cannot share the registry")
	assert.True(t, errors.IsInvalid(err))

	require.NoError(t, client.Close(context.Background()))
	assert.Equal(t, 0, registry.UnregisterOwner(metricsOwner))
}

func TestClient_HealthCallback(t *testing.T) {
	changes := make(chan bool, 1)
	client, err := NewClient("nats://localhost:4222",
		WithHealthChangeCallback(func(healthy bool) { changes <- healthy }))
	require.NoError(t, err)

	client.handleDisconnect(nil, stderrors.New("network"))
	assert.Equal(t, StatusReconnecting, client.Status())

	select {
	case healthy := <-changes:
		assert.False(t, healthy)
	case <-time.After(time.Second):
		t.Fatal("health callback not invoked")
	}
}

func TestClient_OnHealthChangeReplacesCallback(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithHealthChangeCallback(func(bool) { t.Error("replaced callback invoked") }))
	require.NoError(t, err)

	changes := make(chan bool, 1)
	client.OnHealthChange(func(healthy bool) { changes <- healthy })
	client.handleReconnect(nil)

	select {
	case healthy := <-changes:
		assert.True(t, healthy)
	case <-time.After(time.Second):
		t.Fatal("health callback not invoked")
	}
	assert.Equal(t, StatusConnected, client.Status())
}

func TestIsKVNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"jetstream not found", jetstream.ErrKeyNotFound, true},
		{"jetstream deleted", jetstream.ErrKeyDeleted, true},
		{"sentinel", errors.ErrKeyNotFound, true},
		{"api code", stderrors.New("nats: error code 10037"), true},
		{"other", stderrors.New("timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsKVNotFoundError(tt.err))
		})
	}
}

func TestIsAlreadyExistsError(t *testing.T) {
	assert.False(t, isAlreadyExistsError(nil))
	assert.True(t, isAlreadyExistsError(stderrors.New("nats: bucket name already in use")))
	assert.True(t, isAlreadyExistsError(stderrors.New("stream name already in use with a different configuration")))
	assert.False(t, isAlreadyExistsError(stderrors.New("permission denied")))
}
