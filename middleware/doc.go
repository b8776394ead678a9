// Package middleware adapts goAuthClient sessions to net/http.
//
// # Adapters
//
//   - [Transport]: outgoing http.RoundTripper that renews stale credentials and attaches
//     the bearer token, device id, and request id.
//   - [RequireAuthenticated]: incoming handler guard that admits requests only while the
//     Client session is authenticated.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into token manager and Client calls. Renewal
// decisions are delegated to tokens.Manager.
//
// # What this package must NOT do
//
//   - Parse or verify tokens.
//   - Write credentials to storage directly.
//   - Retry requests; the backend package owns retry policy.
package middleware
