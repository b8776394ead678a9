package goAuthClient

import (
	"context"
	"time"

	"github.com/MrEthical07/goAuthClient/tokens"
)

// User is the identity reported by the backend. Values published in a [Snapshot] are
// never mutated afterwards.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username,omitempty"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Role          string `json:"role,omitempty"`
	MFAEnabled    bool   `json:"mfaEnabled,omitempty"`
	MFAPending    bool   `json:"mfaPending,omitempty"`
	MFAMethod     string `json:"mfaMethod,omitempty"`
	EmailVerified bool   `json:"isEmailVerified,omitempty"`
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Credentials identify a password login. Either Email or Username is required.
type Credentials struct {
	Email    string
	Username string
	Password string
}

// Registration describes a new account.
type Registration struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// MFAVerification answers a second-factor challenge.
type MFAVerification struct {
	Code string
	// Method is the factor used, for example "totp" or "backup_code". Empty lets the
	// backend decide.
	Method string
}

// OTPVerification answers an emailed one-time code.
type OTPVerification struct {
	Email   string
	OTP     string
	Purpose string
	// LoginSessionToken is set when completing a password login that required an OTP.
	LoginSessionToken string
}

// AuthResponse is the decoded response of any backend call that can sign a user in.
type AuthResponse struct {
	User *User
	// Tokens is nil when the backend issued no pair.
	Tokens      *tokens.Pair
	MFARequired bool
	OTPRequired bool

	LoginSessionToken     string
	LoginSessionExpiresIn time.Duration
	MaskedEmail           string
	Message               string
}

// OTPChallenge describes an emailed code the caller must submit through VerifyOTP.
type OTPChallenge struct {
	LoginSessionToken string
	ExpiresIn         time.Duration
	MaskedEmail       string
	Message           string
}

// LoginResult is returned by Login and Register.
type LoginResult struct {
	User *User
	// MFARequired is set when the session moved to StateMFAPending.
	MFARequired bool
	// OTPChallenge is set when the password was accepted but an emailed code is still
	// required. The session stays unauthenticated.
	OTPChallenge *OTPChallenge
}

// SessionState is the coarse authentication state.
type SessionState uint8

const (
	// StateLoading is the state before Initialize completes.
	StateLoading SessionState = iota
	StateUnauthenticated
	StateAuthenticated
	// StateMFAPending holds a token pair that is not yet fully authorized.
	StateMFAPending
)

func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateMFAPending:
		return "mfa_pending"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the session. Each transition publishes a new value.
type Snapshot struct {
	User            *User
	IsAuthenticated bool
	IsLoading       bool
	MFAPending      bool
	State           SessionState
}

// Backend performs the network side of every session operation. The backend package
// provides the HTTP implementation.
type Backend interface {
	Login(ctx context.Context, creds Credentials) (*AuthResponse, error)
	Register(ctx context.Context, reg Registration) (*AuthResponse, error)
	CurrentUser(ctx context.Context) (*User, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context) error
	Refresh(ctx context.Context, refreshToken string) (tokens.Pair, error)
	VerifyMFA(ctx context.Context, v MFAVerification) (*AuthResponse, error)
	VerifyOTP(ctx context.Context, v OTPVerification) (*AuthResponse, error)
	VerifyMagicLink(ctx context.Context, token string) (*AuthResponse, error)
	OneTap(ctx context.Context, credential string) (*AuthResponse, error)
}
