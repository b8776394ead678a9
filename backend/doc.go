// Package backend is the HTTP implementation of goAuthClient.Backend and sso.Lookup for
// goAuth-compatible auth APIs.
//
// Requests go through a [middleware.Transport], so every call other than sign-in and
// renewal carries the bearer token and device id and renews a stale access token first.
// Non-2xx responses become [*APIError]; transport failures are wrapped with an oops code
// of "BACKEND_TRANSPORT". Idempotent GETs are retried with exponential backoff.
package backend
