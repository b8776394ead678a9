package goAuthClient

import "context"

type skipAuthContextKey struct{}
type skipRenewalContextKey struct{}
type requestIDContextKey struct{}

// WithoutAuth marks ctx so outgoing requests carry no bearer token and never trigger a
// renewal. Login, registration, and one-time-proof exchanges use it.
func WithoutAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipAuthContextKey{}, true)
}

// AuthSkipped reports whether ctx was marked with [WithoutAuth].
func AuthSkipped(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	skip, _ := ctx.Value(skipAuthContextKey{}).(bool)
	return skip
}

// WithoutRenewal marks ctx so outgoing requests still carry the current bearer token but
// never renew it, before sending or after a 401. Sign-out calls use it so the refresh
// token they revoke is the one the backend holds.
func WithoutRenewal(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipRenewalContextKey{}, true)
}

// RenewalSkipped reports whether ctx was marked with [WithoutRenewal] or [WithoutAuth].
func RenewalSkipped(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	skip, _ := ctx.Value(skipRenewalContextKey{}).(bool)
	return skip || AuthSkipped(ctx)
}

// WithRequestID pins the request id sent with outgoing requests made under ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the id set by [WithRequestID].
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id, id != ""
}
