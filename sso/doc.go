// Package sso answers "does this email domain sign in through single sign-on" with a
// bounded TTL cache in front of the backend lookup.
//
// Concurrent [Detector.Detect] calls for the same domain share one lookup. Lookup
// failures never surface as errors: the caller receives a permissive fallback with the
// cause attached in [Result.Err]. Fallbacks are not cached.
package sso
