package goAuthClient

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goAuthClient/clock"
	"github.com/MrEthical07/goAuthClient/internal/logging"
	"github.com/MrEthical07/goAuthClient/sso"
	"github.com/MrEthical07/goAuthClient/storage"
	"github.com/MrEthical07/goAuthClient/tokens"
)

// Builder assembles a [Client]. A Builder can be used once.
type Builder struct {
	config Config

	store     storage.Store
	tokens    *tokens.Manager
	backend   Backend
	ssoLookup sso.Lookup
	ssoDef    *sso.Provider

	clock     clock.Clock
	scheduler clock.Scheduler
	logger    *slog.Logger
	metrics   *Metrics

	eventSink     EventSink
	onStateChange func(Snapshot)

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential store used when Build creates the token manager.
// It conflicts with WithTokenManager.
func (b *Builder) WithStore(store storage.Store) *Builder {
	b.store = store
	return b
}

// WithTokenManager shares an existing manager, typically the one the backend
// transport was built with. Build rejects a manager whose key prefix or refresh
// threshold differ from Config.Tokens; see [TokensConfig.ManagerConfig]. The Builder's
// clock, logger and metrics are not applied to a shared manager.
func (b *Builder) WithTokenManager(m *tokens.Manager) *Builder {
	b.tokens = m
	return b
}

// WithBackend sets the network collaborator. Required.
func (b *Builder) WithBackend(backend Backend) *Builder {
	b.backend = backend
	return b
}

// WithSSOLookup enables DetectSSO.
func (b *Builder) WithSSOLookup(lookup sso.Lookup) *Builder {
	b.ssoLookup = lookup
	return b
}

// WithDefaultSSOProvider sets the provider reported when SSO lookups fail.
func (b *Builder) WithDefaultSSOProvider(p sso.Provider) *Builder {
	b.ssoDef = &p
	return b
}

// WithClock sets the time source. If clk also implements [clock.Scheduler] it drives
// auto-renewal unless WithScheduler is used.
func (b *Builder) WithClock(clk clock.Clock) *Builder {
	b.clock = clk
	return b
}

// WithScheduler sets the auto-renewal scheduler.
func (b *Builder) WithScheduler(s clock.Scheduler) *Builder {
	b.scheduler = s
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics shares counters created with [NewMetrics].
func (b *Builder) WithMetrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithEventSink enables AuthEvent delivery to sink.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	b.config.Events.Enabled = true
	return b
}

// WithStateChangeHandler registers a callback invoked after subscribers on every
// transition.
func (b *Builder) WithStateChangeHandler(fn func(Snapshot)) *Builder {
	b.onStateChange = fn
	return b
}

// Build validates the configuration and returns a Client in StateLoading.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.backend == nil {
		return nil, errors.New("backend required")
	}
	if b.store != nil && b.tokens != nil {
		return nil, errors.New("WithStore and WithTokenManager are mutually exclusive")
	}

	clk := b.clock
	if clk == nil {
		clk = clock.Real{}
	}
	scheduler := b.scheduler
	if scheduler == nil {
		if s, ok := clk.(clock.Scheduler); ok {
			scheduler = s
		} else {
			scheduler = clock.Real{}
		}
	}
	logger := logging.OrDiscard(b.logger)

	m := b.metrics
	if m == nil {
		m = NewMetrics(cfg.Metrics)
	}

	tm := b.tokens
	if tm == nil {
		store := b.store
		if store == nil {
			store = storage.NewMemoryStore()
		}
		tcfg := cfg.Tokens.ManagerConfig()
		tcfg.Clock = clk
		tcfg.Logger = logger
		tcfg.Metrics = m
		tm = tokens.NewManager(store, tcfg)
	} else if tm.KeyPrefix() != cfg.Tokens.KeyPrefix || tm.RefreshThreshold() != cfg.Tokens.RefreshThreshold {
		return nil, fmt.Errorf("token manager (prefix %q, threshold %s) does not match Config.Tokens (prefix %q, threshold %s)",
			tm.KeyPrefix(), tm.RefreshThreshold(), cfg.Tokens.KeyPrefix, cfg.Tokens.RefreshThreshold)
	}

	var detector *sso.Detector
	if b.ssoLookup != nil {
		d, err := sso.New(b.ssoLookup, sso.Config{
			CacheDuration:   cfg.SSO.CacheDuration,
			CacheSize:       cfg.SSO.CacheSize,
			ExcludedDomains: cfg.SSO.ExcludedDomains,
			DefaultProvider: b.ssoDef,
			Clock:           clk,
			Logger:          logger,
			Metrics:         m,
		})
		if err != nil {
			return nil, fmt.Errorf("sso detector: %w", err)
		}
		detector = d
	}

	c := &Client{
		cfg:           cfg,
		tokens:        tm,
		backend:       b.backend,
		detector:      detector,
		clock:         clk,
		scheduler:     scheduler,
		logger:        logger,
		metrics:       m,
		events:        newEventDispatcher(cfg.Events, b.eventSink, logger),
		onStateChange: b.onStateChange,
		snapshot:      Snapshot{IsLoading: true, State: StateLoading},
	}

	b.built = true
	return c, nil
}
