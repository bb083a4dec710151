// Package testutil provides fixtures shared by the semcache tests.
//
// Payloads and loaders:
//   - Letter and AlphabetLoader: ungrouped single-letter entities. The loader
//     accepts 'a'-'z' and 'A'-'Z' and rejects anything else with
//     ErrInvalidLetter, which wraps errors.ErrInvalidKey.
//   - Employee and DepartmentLoader: entities grouped by department with an
//     "email" secondary index, served by an in-memory GroupLoader that can
//     be told to fail.
//
// Doubles:
//   - FakeClock: a manually advanced cache.Clock for expiry tests.
//   - RecordingNotifier: a cache.Notifier that keeps every event.
//   - MockNATSClient: in-memory publish/subscribe with the natsclient.Client
//     signatures, used by the NATS notifier tests.
//   - MockKVStore: in-memory bucket for the KV loader tests.
//
// Example:
//
//	clock := testutil.NewFakeClock()
//	loader := testutil.NewDepartmentLoader(testutil.Staff()...)
//	mgr, err := cache.NewManager[*testutil.Employee](cfg,
//	    cache.WithLoader[*testutil.Employee](loader),
//	    cache.WithClock[*testutil.Employee](clock),
//	)
package testutil
