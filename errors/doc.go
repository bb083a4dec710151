// Package errors provides standardized error handling for semcache.
//
// # Overview
//
// Every error surfaced by a cache manager falls in one of three classes:
//
//   - Invalid: caller or configuration mistakes. Calling a group operation
//     against a loader without group support, mixing group identifiers in
//     one group store, secondary key layouts that disagree, GetAll on a
//     grouped cache. Never retried.
//   - Transient: the persistence source failed or timed out. The manager
//     itself never retries; the loader.Retrying decorator may.
//   - Fatal: unrecoverable states such as a panicking cleanup policy.
//
// # Wrapping
//
// All wrapping follows the format
//
//	"component.method: action failed: %w"
//
// Use the class-aware wrappers when the class is known at the call site:
//
//	return errors.WrapInvalid(errors.ErrNotGroupLoader, "Manager", "GetByGroup", "group fetch")
//
// and Wrap when the class of the underlying error must be preserved:
//
//	return errors.Wrap(err, "Manager", "Get", "entity fetch")
//
// Classification survives wrapping chains, so
//
//	errors.IsInvalid(err)
//	errors.Is(err, errors.ErrNotGroupLoader)
//
// both work on the outermost error returned by the manager.
//
// # Retry
//
// RetryConfig.ToRetryConfig bridges to the pkg/retry backoff used by loader
// decorators.
package errors
