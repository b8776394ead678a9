package tokens

import "context"

// Pair is an access/refresh token pair. It is stored and cleared as a unit.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Complete reports whether both tokens are present.
func (p Pair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// RenewFunc exchanges a refresh token for a new pair. It is the only network operation
// the manager invokes.
type RenewFunc func(ctx context.Context, refreshToken string) (Pair, error)
