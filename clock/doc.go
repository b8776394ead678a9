// Package clock abstracts wall-clock reads and recurring timers so token expiry checks,
// cache TTLs, and the auto-refresh scheduler can run against virtual time in tests.
//
// # Architecture boundaries
//
// [Real] is the production implementation backed by time.Now and time.Ticker. [Fake]
// advances only when told to and fires due tasks synchronously on the caller's goroutine.
//
// # What this package must NOT do
//
//   - Import any other goAuthClient package.
//   - Start goroutines from [Fake].
package clock
