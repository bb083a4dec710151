// Package retry provides exponential backoff retry logic for transient failures.
//
// The cache manager never retries a failed load on its own. Loader
// decorators (loader.Retrying, loader.KV) use this package to retry calls
// against the persistence source, classifying errors through Config.Retryable:
//
//	cfg := retry.DefaultConfig()
//	cfg.Retryable = errors.IsTransient
//	user, err := retry.DoWithResult(ctx, cfg, func() (*User, error) {
//	    return db.User(ctx, id)
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately regardless of
// Retryable. Backoff sleeps respect context cancellation.
package retry
