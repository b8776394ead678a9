package sso

import (
	"context"
	"errors"
)

// ErrInvalidEmail is the only error Detect returns.
var ErrInvalidEmail = errors.New("invalid email address")

// Provider describes an identity provider configured for a domain.
type Provider struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
}

// Result is the outcome of a detection.
type Result struct {
	HasSSO        bool      `json:"hasSSO"`
	AllowPassword bool      `json:"allowPassword"`
	Provider      *Provider `json:"provider,omitempty"`
	Domain        string    `json:"domain,omitempty"`
	// Err is set on fallback results and carries the lookup failure.
	Err error `json:"-"`
}

// Lookup performs the network detection for email.
type Lookup interface {
	LookupSSO(ctx context.Context, email string) (Result, error)
}

// LookupFunc adapts a function to [Lookup].
type LookupFunc func(ctx context.Context, email string) (Result, error)

func (f LookupFunc) LookupSSO(ctx context.Context, email string) (Result, error) {
	return f(ctx, email)
}
