package backend

import (
	"context"
	"net/http"
	"time"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/sso"
	"github.com/MrEthical07/goAuthClient/tokens"
	"github.com/samber/oops"
)

const (
	pathLogin           = "/auth/login"
	pathRegister        = "/auth/register"
	pathMe              = "/auth/me"
	pathLogout          = "/auth/logout"
	pathLogoutAll       = "/auth/logout-all"
	pathRefresh         = "/auth/refresh"
	pathMFAVerify       = "/auth/mfa/verify"
	pathVerifyOTP       = "/auth/verify-otp"
	pathSendOTP         = "/auth/send-otp"
	pathMagicLinkSend   = "/auth/magic-link/send"
	pathMagicLinkVerify = "/auth/magic-link/verify"
	pathOneTap          = "/auth/google/one-tap"
	pathSSODetect       = "/auth/sso/detect"

	pathResendVerification  = "/auth/resend-verification"
	pathVerifyEmail         = "/auth/verify-email"
	pathRequestVerification = "/auth/request-verification-email"
	pathOTPStatus           = "/auth/otp-status"
)

var (
	_ goAuthClient.Backend = (*Client)(nil)
	_ sso.Lookup           = (*Client)(nil)
)

// Notice acknowledges a request that sends the user something out of band.
type Notice struct {
	Message   string
	ExpiresIn time.Duration
	// ExpiresAt is set when the backend reports an absolute deadline instead.
	ExpiresAt time.Time
}

// OTPStatus is the emailed-code quota of the signed-in user.
type OTPStatus struct {
	AttemptsRemaining int
	ResetTime         time.Time
}

func (c *Client) notice(ctx context.Context, path string, in any) (*Notice, error) {
	var env noticeEnvelope
	if err := c.do(ctx, http.MethodPost, path, in, &env); err != nil {
		return nil, err
	}
	return env.notice(), nil
}

func (c *Client) authCall(ctx context.Context, path string, in any) (*goAuthClient.AuthResponse, error) {
	var env authEnvelope
	if err := c.do(ctx, http.MethodPost, path, in, &env); err != nil {
		return nil, err
	}
	return env.response(), nil
}

func (c *Client) Login(ctx context.Context, creds goAuthClient.Credentials) (*goAuthClient.AuthResponse, error) {
	return c.authCall(goAuthClient.WithoutAuth(ctx), pathLogin, map[string]string{
		"email":    creds.Email,
		"username": creds.Username,
		"password": creds.Password,
	})
}

func (c *Client) Register(ctx context.Context, reg goAuthClient.Registration) (*goAuthClient.AuthResponse, error) {
	return c.authCall(goAuthClient.WithoutAuth(ctx), pathRegister, map[string]string{
		"email":     reg.Email,
		"username":  reg.Username,
		"password":  reg.Password,
		"firstName": reg.FirstName,
		"lastName":  reg.LastName,
	})
}

// CurrentUser fetches the signed-in user. Responses may wrap the user in a "user" field
// or return it bare.
func (c *Client) CurrentUser(ctx context.Context) (*goAuthClient.User, error) {
	var env meEnvelope
	if err := c.do(ctx, http.MethodGet, pathMe, nil, &env); err != nil {
		return nil, err
	}
	if u := env.User.user(); u != nil {
		return u, nil
	}
	if u := env.wireUser.user(); u != nil {
		return u, nil
	}
	return nil, oops.Code(codeDecode).With("path", pathMe).Errorf("response carried no user")
}

// Logout revokes the current session.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, pathLogout, map[string]string{"refreshToken": refreshToken}, nil)
}

// LogoutAll revokes every session of the signed-in user.
func (c *Client) LogoutAll(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, pathLogoutAll, struct{}{}, nil)
}

// Refresh exchanges refreshToken for a new pair. It is the renewal function handed to
// tokens.Manager.RefreshTokens and never carries a bearer token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (tokens.Pair, error) {
	var env authEnvelope
	if err := c.do(goAuthClient.WithoutAuth(ctx), http.MethodPost, pathRefresh, map[string]string{"refreshToken": refreshToken}, &env); err != nil {
		return tokens.Pair{}, err
	}
	pair := env.unwrap().pair()
	if !pair.Complete() {
		return tokens.Pair{}, oops.Code(codeDecode).With("path", pathRefresh).Wrap(tokens.ErrIncompletePair)
	}
	return pair, nil
}

// VerifyMFA is authorized with the pending pair issued by Login.
func (c *Client) VerifyMFA(ctx context.Context, v goAuthClient.MFAVerification) (*goAuthClient.AuthResponse, error) {
	body := map[string]string{"code": v.Code}
	if v.Method != "" {
		body["method"] = v.Method
	}
	return c.authCall(ctx, pathMFAVerify, body)
}

func (c *Client) VerifyOTP(ctx context.Context, v goAuthClient.OTPVerification) (*goAuthClient.AuthResponse, error) {
	return c.authCall(goAuthClient.WithoutAuth(ctx), pathVerifyOTP, map[string]string{
		"email":             v.Email,
		"otp":               v.OTP,
		"purpose":           v.Purpose,
		"loginSessionToken": v.LoginSessionToken,
	})
}

// SendOTP asks the backend to email a one-time code for purpose.
func (c *Client) SendOTP(ctx context.Context, email, purpose string) (*Notice, error) {
	return c.notice(goAuthClient.WithoutAuth(ctx), pathSendOTP, map[string]string{"email": email, "purpose": purpose})
}

// ResendOTP emails a fresh code. The backend serves it from the send endpoint.
func (c *Client) ResendOTP(ctx context.Context, email, purpose string) (*Notice, error) {
	return c.SendOTP(ctx, email, purpose)
}

// OTPStatus reports how many codes the signed-in user may still request.
func (c *Client) OTPStatus(ctx context.Context) (*OTPStatus, error) {
	var env otpStatusEnvelope
	if err := c.do(ctx, http.MethodGet, pathOTPStatus, nil, &env); err != nil {
		return nil, err
	}
	return &OTPStatus{AttemptsRemaining: env.Data.AttemptsRemaining, ResetTime: env.Data.ResetTime}, nil
}

// SendMagicLink asks the backend to email a sign-in link that returns to redirectURL.
func (c *Client) SendMagicLink(ctx context.Context, email, redirectURL string) (*Notice, error) {
	return c.notice(goAuthClient.WithoutAuth(ctx), pathMagicLinkSend, map[string]string{"email": email, "redirectUrl": redirectURL})
}

// SendVerificationEmail emails the signed-in user a link confirming their address.
func (c *Client) SendVerificationEmail(ctx context.Context) (*Notice, error) {
	return c.notice(ctx, pathResendVerification, struct{}{})
}

// ResendVerificationEmail is SendVerificationEmail; the backend uses one endpoint for both.
func (c *Client) ResendVerificationEmail(ctx context.Context) (*Notice, error) {
	return c.SendVerificationEmail(ctx)
}

// RequestVerificationEmail asks for a verification link without a session, for users
// whose sign-in is blocked on an unverified address. The answer does not reveal whether
// email has an account.
func (c *Client) RequestVerificationEmail(ctx context.Context, email string) (*Notice, error) {
	return c.notice(goAuthClient.WithoutAuth(ctx), pathRequestVerification, map[string]string{"email": email})
}

// VerifyEmail confirms an address with the token from a verification link.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, pathVerifyEmail, map[string]string{"token": token}, nil)
}

func (c *Client) VerifyMagicLink(ctx context.Context, token string) (*goAuthClient.AuthResponse, error) {
	return c.authCall(goAuthClient.WithoutAuth(ctx), pathMagicLinkVerify, map[string]string{"token": token})
}

func (c *Client) OneTap(ctx context.Context, credential string) (*goAuthClient.AuthResponse, error) {
	return c.authCall(goAuthClient.WithoutAuth(ctx), pathOneTap, map[string]string{"credential": credential})
}

// LookupSSO implements sso.Lookup.
func (c *Client) LookupSSO(ctx context.Context, email string) (sso.Result, error) {
	var env detectEnvelope
	if err := c.do(goAuthClient.WithoutAuth(ctx), http.MethodPost, pathSSODetect, map[string]string{"email": email}, &env); err != nil {
		return sso.Result{}, err
	}

	r := sso.Result{
		HasSSO:        env.HasSSO,
		AllowPassword: env.AllowPassword || !env.HasSSO,
		Domain:        env.Domain,
	}
	if env.Provider != nil {
		r.Provider = &sso.Provider{
			ID:               env.Provider.ID,
			Name:             env.Provider.Name,
			Type:             env.Provider.Type,
			AuthorizationURL: env.Provider.AuthorizationURL,
		}
	}
	return r, nil
}
