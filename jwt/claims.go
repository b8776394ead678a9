package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned by [Decode] for tokens whose payload cannot be read.
var ErrMalformed = errors.New("malformed token")

// Claims is the subset of token claims the client reads. UID and SID mirror the claims
// issued by goAuth servers and are informational only.
type Claims struct {
	UID string `json:"uid,omitempty"`
	SID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

var parser = jwt.NewParser()

// Decode parses the token payload without verifying the signature.
func Decode(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMalformed
	}
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return claims, nil
}

// ExpiresAt returns the exp claim. ok is false when the token is malformed or carries no
// exp, both of which callers must treat as already expired.
func ExpiresAt(token string) (exp time.Time, ok bool) {
	claims, err := Decode(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ExpiresWithin reports whether token expires at or before now+threshold. Unreadable
// tokens always report true.
func ExpiresWithin(token string, now time.Time, threshold time.Duration) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return true
	}
	return exp.Sub(now) <= threshold
}
