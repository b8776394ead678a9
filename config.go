package goAuthClient

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/goAuthClient/tokens"
	"github.com/caarlos0/env/v11"
)

// Config controls every Client subsystem. Build one with [DefaultConfig] or
// [LoadConfigFromEnv] and adjust fields before passing it to [Builder.WithConfig].
//
// Config instances are treated as immutable once a Client is built.
type Config struct {
	Tokens      TokensConfig
	AutoRefresh AutoRefreshConfig
	Session     SessionConfig
	SSO         SSOConfig
	Events      EventsConfig
	Metrics     MetricsConfig
	Backend     BackendConfig
}

/*
====================================
TOKENS CONFIG
====================================
*/

// TokensConfig controls credential persistence and staleness.
type TokensConfig struct {
	// KeyPrefix namespaces persisted keys so several clients can share one store.
	KeyPrefix string `env:"GOAUTH_CLIENT_TOKENS_KEY_PREFIX"`
	// RefreshThreshold is how close to expiry an access token is considered stale.
	RefreshThreshold time.Duration `env:"GOAUTH_CLIENT_TOKENS_REFRESH_THRESHOLD"`
}

// ManagerConfig returns the tokens.Config matching c. Callers building a manager for
// Builder.WithTokenManager start from it and add their clock, logger and metrics.
func (c TokensConfig) ManagerConfig() tokens.Config {
	return tokens.Config{
		KeyPrefix:        c.KeyPrefix,
		RefreshThreshold: c.RefreshThreshold,
	}
}

/*
====================================
AUTO REFRESH CONFIG
====================================
*/

// AutoRefreshConfig controls the background renewal scheduler.
type AutoRefreshConfig struct {
	// Enabled starts the scheduler whenever the session becomes authenticated.
	Enabled  bool          `env:"GOAUTH_CLIENT_AUTO_REFRESH_ENABLED"`
	Interval time.Duration `env:"GOAUTH_CLIENT_AUTO_REFRESH_INTERVAL"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls current-user resolution.
type SessionConfig struct {
	// UserCacheDuration is how long a fetched user is reused by CurrentUser.
	// Zero disables caching; concurrent lookups are still coalesced.
	UserCacheDuration time.Duration `env:"GOAUTH_CLIENT_SESSION_USER_CACHE_DURATION"`
}

/*
====================================
SSO CONFIG
====================================
*/

// SSOConfig controls the domain detection cache.
type SSOConfig struct {
	CacheDuration   time.Duration `env:"GOAUTH_CLIENT_SSO_CACHE_DURATION"`
	CacheSize       int           `env:"GOAUTH_CLIENT_SSO_CACHE_SIZE"`
	ExcludedDomains []string      `env:"GOAUTH_CLIENT_SSO_EXCLUDED_DOMAINS" envSeparator:","`
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig controls asynchronous AuthEvent delivery.
type EventsConfig struct {
	Enabled    bool `env:"GOAUTH_CLIENT_EVENTS_ENABLED"`
	BufferSize int  `env:"GOAUTH_CLIENT_EVENTS_BUFFER_SIZE"`
	// DropIfFull drops events instead of blocking the emitting operation.
	DropIfFull bool `env:"GOAUTH_CLIENT_EVENTS_DROP_IF_FULL"`
	// Types limits delivery to these event types. Empty delivers every type.
	Types []string `env:"GOAUTH_CLIENT_EVENTS_TYPES" envSeparator:","`
	// FlushTimeout bounds how long Destroy waits for queued events. Zero waits until
	// the sink has taken every one.
	FlushTimeout time.Duration `env:"GOAUTH_CLIENT_EVENTS_FLUSH_TIMEOUT"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"GOAUTH_CLIENT_METRICS_ENABLED"`
	EnableLatencyHistograms bool `env:"GOAUTH_CLIENT_METRICS_LATENCY_HISTOGRAMS"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig is consumed by the backend package.
type BackendConfig struct {
	BaseURL      string        `env:"GOAUTH_CLIENT_BACKEND_BASE_URL"`
	Timeout      time.Duration `env:"GOAUTH_CLIENT_BACKEND_TIMEOUT"`
	DeviceHeader string        `env:"GOAUTH_CLIENT_BACKEND_DEVICE_HEADER"`
	// MaxRetries bounds retries of idempotent requests.
	MaxRetries int `env:"GOAUTH_CLIENT_BACKEND_MAX_RETRIES"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Tokens: TokensConfig{
			KeyPrefix:        "goauth:",
			RefreshThreshold: 300 * time.Second,
		},
		AutoRefresh: AutoRefreshConfig{
			Enabled:  true,
			Interval: 60 * time.Second,
		},
		Session: SessionConfig{
			UserCacheDuration: 10 * time.Second,
		},
		SSO: SSOConfig{
			CacheDuration: 5 * time.Minute,
			CacheSize:     1024,
		},
		Events: EventsConfig{
			Enabled:      false,
			BufferSize:   256,
			DropIfFull:   true,
			FlushTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Backend: BackendConfig{
			Timeout:      10 * time.Second,
			DeviceHeader: "X-Device-ID",
			MaxRetries:   2,
		},
	}
}

// LoadConfigFromEnv overlays GOAUTH_CLIENT_* environment variables on [DefaultConfig]
// and validates the result.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.SSO.ExcludedDomains = slices.Clone(cfg.SSO.ExcludedDomains)
	out.Events.Types = slices.Clone(cfg.Events.Types)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// Tokens
	if c.Tokens.KeyPrefix == "" {
		return errors.New("Tokens KeyPrefix must not be empty")
	}
	if c.Tokens.RefreshThreshold < 0 {
		return errors.New("Tokens RefreshThreshold must be >= 0")
	}

	// AutoRefresh
	if c.AutoRefresh.Enabled && c.AutoRefresh.Interval <= 0 {
		return errors.New("AutoRefresh Interval must be > 0 when Enabled")
	}

	if c.Session.UserCacheDuration < 0 {
		return errors.New("Session UserCacheDuration must be >= 0")
	}

	// SSO
	if c.SSO.CacheDuration <= 0 {
		return errors.New("SSO CacheDuration must be > 0")
	}
	if c.SSO.CacheSize <= 0 {
		return errors.New("SSO CacheSize must be > 0")
	}
	for _, d := range c.SSO.ExcludedDomains {
		if strings.TrimSpace(d) == "" {
			return errors.New("SSO ExcludedDomains must not contain empty entries")
		}
	}

	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when Enabled")
	}
	if c.Events.FlushTimeout < 0 {
		return errors.New("Events FlushTimeout must be >= 0")
	}
	for _, t := range c.Events.Types {
		if !slices.Contains(eventTypes, t) {
			return fmt.Errorf("Events Types: unknown event type %q", t)
		}
	}

	// Backend
	if c.Backend.BaseURL != "" {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("Backend BaseURL must be an absolute URL")
		}
	}
	if c.Backend.Timeout < 0 {
		return errors.New("Backend Timeout must be >= 0")
	}
	if c.Backend.DeviceHeader == "" {
		return errors.New("Backend DeviceHeader must not be empty")
	}
	if c.Backend.MaxRetries < 0 {
		return errors.New("Backend MaxRetries must be >= 0")
	}

	return nil
}
