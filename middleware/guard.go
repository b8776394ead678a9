package middleware

import (
	"context"
	"net/http"

	goAuthClient "github.com/MrEthical07/goAuthClient"
)

type snapshotContextKey struct{}

// SnapshotFromContext returns the session snapshot stored by [RequireAuthenticated].
func SnapshotFromContext(ctx context.Context) (goAuthClient.Snapshot, bool) {
	s, ok := ctx.Value(snapshotContextKey{}).(goAuthClient.Snapshot)
	return s, ok
}

// StateSource reports the current session snapshot. *goAuthClient.Client satisfies it.
type StateSource interface {
	State() goAuthClient.Snapshot
}

// RequireAuthenticated admits requests only while source reports an authenticated
// session, and injects the snapshot into the request context. Sessions waiting on a
// second factor are rejected with 403; every other state with 401.
func RequireAuthenticated(source StateSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if source == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			snap := source.State()
			switch snap.State {
			case goAuthClient.StateAuthenticated:
			case goAuthClient.StateMFAPending:
				http.Error(w, "mfa required", http.StatusForbidden)
				return
			default:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), snapshotContextKey{}, snap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
