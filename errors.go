package goAuthClient

import "errors"

var (
	// ErrNotInitialized is returned by operations that need a built Client.
	ErrNotInitialized = errors.New("client not initialized")
	// ErrClientDestroyed is returned after Destroy.
	ErrClientDestroyed = errors.New("client destroyed")
	// ErrTokensMissing is returned when the backend accepted a request that must sign the
	// user in but returned no token pair.
	ErrTokensMissing = errors.New("backend response carried no token pair")
	// ErrNoMFAPending is returned by VerifyMFA when no second-factor challenge is open.
	ErrNoMFAPending = errors.New("no mfa challenge pending")
	// ErrNotAuthenticated is returned when a signed-in client finds its credentials were
	// cleared, e.g. by a failed background renewal.
	ErrNotAuthenticated = errors.New("session credentials no longer present")
	// ErrSSOUnavailable is returned by DetectSSO when no detector is configured.
	ErrSSOUnavailable = errors.New("sso detection not configured")
)
