package tokens

import "errors"

var (
	// ErrIncompletePair is returned when a pair with an empty token is stored or returned
	// by a renewal.
	ErrIncompletePair = errors.New("incomplete token pair")
	// ErrNoRenewFunc is returned by RefreshTokens when called without a renewal function.
	ErrNoRenewFunc = errors.New("renew function required")
)
