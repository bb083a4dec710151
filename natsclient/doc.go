// Package natsclient wraps a NATS connection with a circuit breaker,
// connection status tracking and JetStream KeyValue helpers.
//
// semcache uses it for two things: publishing cache events on a subject
// (see notifier.NATS) and reading cacheable entities from a KV bucket
// (see loader.KV).
//
//	client, err := natsclient.NewClient(url, natsclient.WithName("semcache"))
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(ctx)
//
//	bucket, err := client.GetKeyValueBucket(ctx, "letters")
//	if err != nil {
//		return err
//	}
//	store := client.NewKVStore(bucket)
//
// After five consecutive failures the circuit opens and Publish fails fast
// with ErrCircuitOpen until a backoff elapses. TestClient starts a
// throwaway NATS server in a container for integration tests.
package natsclient
