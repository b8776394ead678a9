package authtest

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var signingKey = []byte("authtest-signing-key-authtest-signing-key")

type claims struct {
	UID string `json:"uid,omitempty"`
	SID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// MintToken returns a signed token for uid expiring at exp. Each call yields a distinct
// token.
func MintToken(uid string, exp time.Time) string {
	c := claims{
		UID: uid,
		SID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return tok
}

// MintPair returns an access and refresh token expiring accessTTL and refreshTTL after now.
func MintPair(uid string, now time.Time, accessTTL, refreshTTL time.Duration) (access, refresh string) {
	return MintToken(uid, now.Add(accessTTL)), MintToken(uid, now.Add(refreshTTL))
}

// Subject returns the uid claim of a token minted by this package, or "".
func Subject(token string) string {
	c := &claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, c); err != nil {
		return ""
	}
	return c.UID
}
