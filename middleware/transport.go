package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/internal/logging"
	"github.com/MrEthical07/goAuthClient/tokens"
	"github.com/google/uuid"
)

const (
	// DefaultDeviceHeader carries the installation's device id.
	DefaultDeviceHeader = "X-Device-ID"
	// RequestIDHeader carries a per-request id.
	RequestIDHeader = "X-Request-ID"
)

// Credentials is the subset of *tokens.Manager the transport needs.
type Credentials interface {
	AccessToken(ctx context.Context) (string, bool)
	RefreshToken(ctx context.Context) (string, bool)
	DeviceID(ctx context.Context) (string, error)
	NeedsRefreshDefault(ctx context.Context) bool
	RefreshTokens(ctx context.Context, renew tokens.RenewFunc) (*tokens.Pair, error)
}

// Transport decorates outgoing requests with session credentials. A stale access token
// is renewed before sending. A 401 answer is retried once after a renewal when the body
// can be replayed; concurrent 401s share that renewal.
//
// Requests whose context is marked with goAuthClient.WithoutAuth carry no bearer token
// and never renew. goAuthClient.WithoutRenewal keeps the bearer token but disables both
// renewals.
type Transport struct {
	// Base performs the request. Default http.DefaultTransport.
	Base http.RoundTripper
	// Tokens supplies credentials. Required.
	Tokens Credentials
	// Renew is invoked through Tokens.RefreshTokens when the access token is stale.
	// Nil disables renewal.
	Renew tokens.RenewFunc
	// DeviceHeader defaults to DefaultDeviceHeader.
	DeviceHeader string
	Logger       *slog.Logger
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper. The caller's request is never modified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	out := req.Clone(ctx)

	if out.Header.Get(RequestIDHeader) == "" {
		id, ok := goAuthClient.RequestIDFromContext(ctx)
		if !ok {
			id = uuid.NewString()
		}
		out.Header.Set(RequestIDHeader, id)
	}

	if t.Tokens == nil {
		return t.base().RoundTrip(out)
	}

	header := t.DeviceHeader
	if header == "" {
		header = DefaultDeviceHeader
	}
	if id, err := t.Tokens.DeviceID(ctx); err == nil {
		out.Header.Set(header, id)
	} else {
		logging.LogError(ctx, logging.OrDiscard(t.Logger), "goAuthClient: device id unavailable", err)
	}

	if goAuthClient.AuthSkipped(ctx) {
		out.Header.Del("Authorization")
		return t.base().RoundTrip(out)
	}

	renew := t.Renew != nil && !goAuthClient.RenewalSkipped(ctx)
	if renew && t.Tokens.NeedsRefreshDefault(ctx) {
		if _, ok := t.Tokens.RefreshToken(ctx); ok {
			if _, err := t.Tokens.RefreshTokens(ctx, t.Renew); err != nil {
				logging.LogError(ctx, logging.OrDiscard(t.Logger), "goAuthClient: pre-request renewal failed", err,
					"path", req.URL.Path)
			}
		}
	}

	sent, _ := t.Tokens.AccessToken(ctx)
	if sent != "" {
		out.Header.Set("Authorization", "Bearer "+sent)
	}
	resp, err := t.base().RoundTrip(out)
	if err != nil || !renew || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if out.Body != nil && out.Body != http.NoBody && out.GetBody == nil {
		return resp, nil
	}

	access, ok := t.renewRejected(ctx, sent)
	if !ok {
		return resp, nil
	}

	retry := out.Clone(ctx)
	if out.GetBody != nil {
		body, err := out.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}
	drain(resp)

	retry.Header.Set("Authorization", "Bearer "+access)
	logging.OrDiscard(t.Logger).DebugContext(ctx, "goAuthClient: replaying request after renewal", "path", req.URL.Path)
	return t.base().RoundTrip(retry)
}

// renewRejected returns the access token to replay a request that was rejected while
// carrying sent. When another request already replaced sent, its pair is reused.
func (t *Transport) renewRejected(ctx context.Context, sent string) (string, bool) {
	if _, ok := t.Tokens.RefreshToken(ctx); !ok {
		return "", false
	}
	if current, ok := t.Tokens.AccessToken(ctx); !ok || current == sent {
		if _, err := t.Tokens.RefreshTokens(ctx, t.Renew); err != nil {
			logging.LogError(ctx, logging.OrDiscard(t.Logger), "goAuthClient: renewal after 401 failed", err)
			return "", false
		}
	}

	access, ok := t.Tokens.AccessToken(ctx)
	if !ok || access == sent {
		return "", false
	}
	return access, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
