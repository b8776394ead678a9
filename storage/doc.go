// Package storage provides the pluggable key/value backends that hold client credentials:
// the access token, refresh token, device identifier, and MFA-pending flag.
//
// # Backends
//
//   - [MemoryStore] keeps values in process memory for the lifetime of the store.
//   - [ScopedStore] namespaces another store under a per-scope key prefix, giving each
//     scope (a tab, a worker, a test) an isolated credential set on a shared backend.
//   - [RedisStore] persists values in Redis so several processes on one installation
//     share a session.
//
// # Architecture boundaries
//
// Values are opaque strings. Key naming, token semantics, and expiry policy belong to the
// tokens package. Multi-key writes and deletes are atomic per call so a token pair is never
// observed half-written.
//
// # What this package must NOT do
//
//   - Interpret stored values.
//   - Import goAuthClient, tokens, or backend.
package storage
