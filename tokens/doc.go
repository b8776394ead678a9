// Package tokens owns the client's credentials: it reads and writes the token pair,
// device identifier, and MFA-pending flag through a [storage.Store], judges token
// staleness from the exp claim, and coordinates renewal.
//
// # Renewal
//
// [Manager.RefreshTokens] is single-flight: however many goroutines discover a stale
// access token at once, exactly one renewal request reaches the backend and every caller
// observes its result. Backends rotate refresh tokens on use, so parallel renewals would
// invalidate each other; coalescing is a correctness requirement.
//
// A generation counter, advanced by every [Manager.SetTokens] and [Manager.ClearTokens],
// guards renewal side effects. A renewal that completes after the credentials it started
// from were replaced or cleared applies nothing.
//
// # Architecture boundaries
//
// This package does not perform HTTP itself. The renewal network call is injected as a
// [RenewFunc]; everything else about the backend lives in the backend package.
//
// # What this package must NOT do
//
//   - Import goAuthClient or backend.
//   - Verify token signatures.
//   - Panic or return errors for malformed tokens; they are treated as expired.
package tokens
