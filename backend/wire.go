package backend

import (
	"time"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/tokens"
)

type wireUser struct {
	ID            string `json:"id"`
	MongoID       string `json:"_id"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Role          string `json:"role"`
	MFAEnabled    bool   `json:"mfaEnabled"`
	MFAPending    bool   `json:"mfaPending"`
	MFAMethod     string `json:"mfaMethod"`
	EmailVerified bool   `json:"isEmailVerified"`
}

func (w *wireUser) user() *goAuthClient.User {
	if w == nil {
		return nil
	}
	id := w.ID
	if id == "" {
		id = w.MongoID
	}
	if id == "" && w.Email == "" {
		return nil
	}
	return &goAuthClient.User{
		ID:            id,
		Email:         w.Email,
		Username:      w.Username,
		FirstName:     w.FirstName,
		LastName:      w.LastName,
		Role:          w.Role,
		MFAEnabled:    w.MFAEnabled,
		MFAPending:    w.MFAPending,
		MFAMethod:     w.MFAMethod,
		EmailVerified: w.EmailVerified,
	}
}

// authEnvelope accepts both the snake_case and camelCase token fields goAuth servers
// have emitted, and an optional "data" wrapper.
type authEnvelope struct {
	User              *wireUser `json:"user"`
	AccessToken       string    `json:"accessToken"`
	AccessTokenSnake  string    `json:"access_token"`
	RefreshToken      string    `json:"refreshToken"`
	RefreshTokenSnake string    `json:"refresh_token"`

	Requires struct {
		OTP bool `json:"otp"`
		MFA bool `json:"mfa"`
	} `json:"requires"`
	RequiresOTP bool `json:"requiresOtp"`
	MFARequired bool `json:"mfaRequired"`

	LoginSessionToken     string `json:"loginSessionToken"`
	LoginSessionExpiresIn int    `json:"loginSessionExpiresIn"`
	Email                 string `json:"email"`
	Message               string `json:"message"`

	Data *authEnvelope `json:"data"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (e *authEnvelope) pair() tokens.Pair {
	return tokens.Pair{
		AccessToken:  firstNonEmpty(e.AccessToken, e.AccessTokenSnake),
		RefreshToken: firstNonEmpty(e.RefreshToken, e.RefreshTokenSnake),
	}
}

func (e *authEnvelope) unwrap() *authEnvelope {
	if e.Data != nil && e.User == nil && !e.pair().Complete() {
		return e.Data.unwrap()
	}
	return e
}

func (e *authEnvelope) response() *goAuthClient.AuthResponse {
	e = e.unwrap()
	resp := &goAuthClient.AuthResponse{
		User:                  e.User.user(),
		MFARequired:           e.MFARequired || e.Requires.MFA,
		OTPRequired:           e.RequiresOTP || e.Requires.OTP,
		LoginSessionToken:     e.LoginSessionToken,
		LoginSessionExpiresIn: time.Duration(e.LoginSessionExpiresIn) * time.Second,
		MaskedEmail:           e.Email,
		Message:               e.Message,
	}
	if p := e.pair(); p.Complete() {
		resp.Tokens = &p
	}
	if resp.User != nil && resp.MFARequired {
		resp.User.MFAPending = true
	}
	return resp
}

type meEnvelope struct {
	User *wireUser `json:"user"`
	wireUser
}

type noticeEnvelope struct {
	Message   string    `json:"message"`
	ExpiresIn int       `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (e *noticeEnvelope) notice() *Notice {
	return &Notice{
		Message:   e.Message,
		ExpiresIn: time.Duration(e.ExpiresIn) * time.Second,
		ExpiresAt: e.ExpiresAt,
	}
}

type otpStatusEnvelope struct {
	Data struct {
		AttemptsRemaining int       `json:"attemptsRemaining"`
		ResetTime         time.Time `json:"resetTime"`
	} `json:"data"`
}

type detectEnvelope struct {
	HasSSO        bool   `json:"hasSSO"`
	AllowPassword bool   `json:"allowPassword"`
	Domain        string `json:"domain"`
	Provider      *struct {
		ID               string `json:"id"`
		Name             string `json:"name"`
		Type             string `json:"type"`
		AuthorizationURL string `json:"authorizationUrl"`
	} `json:"provider"`
}
