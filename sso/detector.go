package sso

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goAuthClient/clock"
	"github.com/MrEthical07/goAuthClient/internal/logging"
	"github.com/MrEthical07/goAuthClient/internal/metrics"
	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/idna"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheDuration is how long a detection result stays fresh.
	DefaultCacheDuration = 5 * time.Minute
	// DefaultCacheSize bounds the number of cached domains.
	DefaultCacheSize = 1024
)

// Config configures a [Detector]. Zero values select defaults.
type Config struct {
	CacheDuration time.Duration
	CacheSize     int
	// ExcludedDomains are answered "no SSO" without a lookup. Entries are exact domains or
	// wildcard patterns such as "*.gmail.com".
	ExcludedDomains []string
	// DefaultProvider, when set, turns lookup failures into an SSO-enabled fallback that
	// still allows password login.
	DefaultProvider *Provider
	Clock           clock.Clock
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

type entry struct {
	result   Result
	storedAt time.Time
}

// Detector is safe for concurrent use.
type Detector struct {
	lookup   Lookup
	ttl      time.Duration
	exact    map[string]struct{}
	patterns []glob.Glob
	fallback *Provider
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics

	cache  *lru.Cache[string, entry]
	flight singleflight.Group

	// epoch advances on every Clear so lookups started before it do not repopulate the
	// cache. mu orders those cache writes against Clear.
	mu    sync.Mutex
	epoch uint64
}

// New builds a detector over lookup.
func New(lookup Lookup, cfg Config) (*Detector, error) {
	if lookup == nil {
		return nil, errors.New("sso: lookup is required")
	}
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = DefaultCacheDuration
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	cache, err := lru.New[string, entry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("sso: cache: %w", err)
	}

	d := &Detector{
		lookup:   lookup,
		ttl:      cfg.CacheDuration,
		exact:    make(map[string]struct{}),
		fallback: cfg.DefaultProvider,
		clock:    cfg.Clock,
		logger:   logging.OrDiscard(cfg.Logger),
		metrics:  cfg.Metrics,
		cache:    cache,
	}

	for _, raw := range cfg.ExcludedDomains {
		p := strings.ToLower(strings.TrimSpace(raw))
		if p == "" {
			continue
		}
		if !strings.ContainsAny(p, "*?[{") {
			d.exact[p] = struct{}{}
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("sso: excluded domain %q: %w", raw, err)
		}
		d.patterns = append(d.patterns, g)
	}

	return d, nil
}

// Domain extracts and normalizes the domain of email.
func Domain(email string) (string, error) {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", ErrInvalidEmail
	}

	domain, err := idna.Lookup.ToASCII(strings.ToLower(email[at+1:]))
	if err != nil || domain == "" {
		return "", ErrInvalidEmail
	}
	return domain, nil
}

func (d *Detector) excluded(domain string) bool {
	if _, ok := d.exact[domain]; ok {
		return true
	}
	for _, g := range d.patterns {
		if g.Match(domain) {
			return true
		}
	}
	return false
}

func (d *Detector) cached(domain string) (Result, bool) {
	e, ok := d.cache.Get(domain)
	if !ok {
		return Result{}, false
	}
	if d.clock.Now().Sub(e.storedAt) >= d.ttl {
		d.cache.Remove(domain)
		return Result{}, false
	}
	return e.result, true
}

// Detect reports whether email's domain uses SSO.
func (d *Detector) Detect(ctx context.Context, email string) (Result, error) {
	domain, err := Domain(email)
	if err != nil {
		return Result{}, err
	}

	if d.excluded(domain) {
		d.metrics.Inc(metrics.SSOExcluded)
		return Result{AllowPassword: true, Domain: domain}, nil
	}

	if r, ok := d.cached(domain); ok {
		d.metrics.Inc(metrics.SSOCacheHit)
		return r, nil
	}
	d.metrics.Inc(metrics.SSOCacheMiss)

	detached := context.WithoutCancel(ctx)
	ch := d.flight.DoChan(domain, func() (any, error) {
		// A flight that finished between the cache check and DoChan already stored it.
		if r, ok := d.cached(domain); ok {
			return r, nil
		}

		epoch := d.currentEpoch()
		r, err := d.lookup.LookupSSO(detached, email)
		if err != nil {
			return Result{}, err
		}
		r.Domain = domain
		r.Err = nil
		d.store(epoch, domain, r)
		return r, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			d.metrics.Inc(metrics.SSOLookupCoalesced)
		}
		if res.Err != nil {
			return d.fallbackResult(ctx, domain, res.Err), nil
		}
		return res.Val.(Result), nil
	case <-ctx.Done():
		return d.fallbackResult(ctx, domain, ctx.Err()), nil
	}
}

func (d *Detector) fallbackResult(ctx context.Context, domain string, cause error) Result {
	d.metrics.Inc(metrics.SSOLookupFailure)
	logging.LogError(ctx, d.logger, "goAuthClient: sso lookup failed", cause, "domain", domain)

	if d.fallback != nil {
		p := *d.fallback
		return Result{HasSSO: true, AllowPassword: true, Provider: &p, Domain: domain, Err: cause}
	}
	return Result{AllowPassword: true, Domain: domain, Err: cause}
}

func (d *Detector) currentEpoch() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.epoch
}

// store caches r unless Clear ran since epoch was read.
func (d *Detector) store(epoch uint64, domain string, r Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.epoch != epoch {
		return
	}
	d.cache.Add(domain, entry{result: r, storedAt: d.clock.Now()})
}

// Clear evicts the given domains, or every entry when none are given. Lookups already in
// flight still answer their callers but are not cached.
func (d *Detector) Clear(domains ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.epoch++

	if len(domains) == 0 {
		d.cache.Purge()
		return
	}
	for _, raw := range domains {
		domain, err := idna.Lookup.ToASCII(strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			domain = strings.ToLower(strings.TrimSpace(raw))
		}
		d.cache.Remove(domain)
	}
}

// Len reports the number of cached domains, including entries not yet evicted for age.
func (d *Detector) Len() int {
	return d.cache.Len()
}
