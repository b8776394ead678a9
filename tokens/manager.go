package tokens

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goAuthClient/clock"
	"github.com/MrEthical07/goAuthClient/internal"
	"github.com/MrEthical07/goAuthClient/internal/logging"
	"github.com/MrEthical07/goAuthClient/internal/metrics"
	"github.com/MrEthical07/goAuthClient/jwt"
	"github.com/MrEthical07/goAuthClient/storage"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultKeyPrefix namespaces persisted keys.
	DefaultKeyPrefix = "goauth:"
	// DefaultRefreshThreshold is how close to expiry an access token must be before
	// NeedsRefresh reports true.
	DefaultRefreshThreshold = 300 * time.Second

	accessKeySuffix  = "access_token"
	refreshKeySuffix = "refresh_token"
	deviceKeySuffix  = "device_id"
	mfaKeySuffix     = "mfa_pending"

	mfaPendingValue = "1"
	refreshFlight   = "refresh"
)

// Config configures a [Manager]. Zero values select defaults.
type Config struct {
	// KeyPrefix is prepended to every persisted key. Default "goauth:".
	KeyPrefix string
	// RefreshThreshold is the default staleness window for NeedsRefresh. Default 300s.
	RefreshThreshold time.Duration
	// Clock supplies the current time. Default clock.Real.
	Clock clock.Clock
	// Logger receives store failures. Default discards.
	Logger *slog.Logger
	// Metrics records renewal outcomes. Optional.
	Metrics *metrics.Metrics
	// OnRefresh is called with the new pair after every renewal that was applied.
	OnRefresh func(Pair)
}

type keys struct {
	access  string
	refresh string
	device  string
	mfa     string
}

// Manager is the authoritative view of stored credentials.
//
// Manager is safe for concurrent use.
type Manager struct {
	store     storage.Store
	prefix    string
	keys      keys
	threshold time.Duration
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onRefresh func(Pair)

	// mu serializes credential writes and paired reads; generation advances on every
	// write so in-flight renewals can detect that their starting point is gone.
	mu         sync.Mutex
	generation uint64
	// inflight is closed when the running renewal finishes; nil when none runs.
	inflight chan struct{}

	deviceMu sync.Mutex
	deviceID string

	flight singleflight.Group
}

// NewManager builds a manager over store.
func NewManager(store storage.Store, cfg Config) *Manager {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = DefaultRefreshThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	return &Manager{
		store:  store,
		prefix: cfg.KeyPrefix,
		keys: keys{
			access:  cfg.KeyPrefix + accessKeySuffix,
			refresh: cfg.KeyPrefix + refreshKeySuffix,
			device:  cfg.KeyPrefix + deviceKeySuffix,
			mfa:     cfg.KeyPrefix + mfaKeySuffix,
		},
		threshold: cfg.RefreshThreshold,
		clock:     cfg.Clock,
		logger:    logging.OrDiscard(cfg.Logger),
		metrics:   cfg.Metrics,
		onRefresh: cfg.OnRefresh,
	}
}

// KeyPrefix returns the namespace of the persisted keys.
func (m *Manager) KeyPrefix() string {
	return m.prefix
}

// RefreshThreshold returns the configured default staleness window.
func (m *Manager) RefreshThreshold() time.Duration {
	return m.threshold
}

func (m *Manager) read(ctx context.Context, key string) (string, bool) {
	v, ok, err := m.store.Get(ctx, key)
	if err != nil {
		logging.LogError(ctx, m.logger, "goAuthClient: credential read failed", err, "key", key)
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// AccessToken returns the stored access token. Store failures read as absent.
func (m *Manager) AccessToken(ctx context.Context) (string, bool) {
	return m.read(ctx, m.keys.access)
}

// RefreshToken returns the stored refresh token. Store failures read as absent.
func (m *Manager) RefreshToken(ctx context.Context) (string, bool) {
	return m.read(ctx, m.keys.refresh)
}

// Tokens returns the stored pair, or false unless both tokens are present.
func (m *Manager) Tokens(ctx context.Context) (Pair, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokensLocked(ctx)
}

func (m *Manager) tokensLocked(ctx context.Context) (Pair, bool) {
	access, ok := m.read(ctx, m.keys.access)
	if !ok {
		return Pair{}, false
	}
	refresh, ok := m.read(ctx, m.keys.refresh)
	if !ok {
		return Pair{}, false
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, true
}

// IsAuthenticated reports whether a usable session exists: both tokens are present and
// either the access token or, failing that, the refresh token is unexpired.
//
// A session with a stale access token still counts as authenticated because renewal is
// expected to succeed. Callers hitting protected endpoints directly must renew first when
// NeedsRefresh reports true.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	pair, ok := m.Tokens(ctx)
	if !ok {
		return false
	}
	now := m.clock.Now()
	if !jwt.ExpiresWithin(pair.AccessToken, now, 0) {
		return true
	}
	return !jwt.ExpiresWithin(pair.RefreshToken, now, 0)
}

// NeedsRefresh reports whether the access token is absent or expires within threshold.
func (m *Manager) NeedsRefresh(ctx context.Context, threshold time.Duration) bool {
	access, ok := m.AccessToken(ctx)
	if !ok {
		return true
	}
	return jwt.ExpiresWithin(access, m.clock.Now(), threshold)
}

// NeedsRefreshDefault is NeedsRefresh with the configured threshold.
func (m *Manager) NeedsRefreshDefault(ctx context.Context) bool {
	return m.NeedsRefresh(ctx, m.threshold)
}

// SetTokens stores pair atomically. Incomplete pairs are rejected.
func (m *Manager) SetTokens(ctx context.Context, pair Pair) error {
	if !pair.Complete() {
		return ErrIncompletePair
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	return m.writeLocked(ctx, pair)
}

func (m *Manager) writeLocked(ctx context.Context, pair Pair) error {
	return m.store.SetMulti(ctx, map[string]string{
		m.keys.access:  pair.AccessToken,
		m.keys.refresh: pair.RefreshToken,
	})
}

// ClearTokens removes both tokens and the MFA-pending flag.
func (m *Manager) ClearTokens(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	return m.clearLocked(ctx)
}

func (m *Manager) clearLocked(ctx context.Context) error {
	return m.store.Delete(ctx, m.keys.access, m.keys.refresh, m.keys.mfa)
}

// SetMFAPending persists or clears the MFA-pending flag.
func (m *Manager) SetMFAPending(ctx context.Context, pending bool) error {
	if pending {
		return m.store.SetMulti(ctx, map[string]string{m.keys.mfa: mfaPendingValue})
	}
	return m.store.Delete(ctx, m.keys.mfa)
}

// IsMFAPending reports the persisted MFA-pending flag. Store failures read as false.
func (m *Manager) IsMFAPending(ctx context.Context) bool {
	v, ok := m.read(ctx, m.keys.mfa)
	return ok && v == mfaPendingValue
}

// DeviceID returns the installation's device identifier, creating and persisting it on
// first use. Once observed, the value never changes for this manager. If persisting a
// fresh identifier fails, the identifier is still returned and kept in memory.
func (m *Manager) DeviceID(ctx context.Context) (string, error) {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()

	if m.deviceID != "" {
		return m.deviceID, nil
	}

	if v, ok := m.read(ctx, m.keys.device); ok && internal.ValidDeviceID(v) {
		m.deviceID = v
		return v, nil
	}

	id, err := internal.NewDeviceID()
	if err != nil {
		return "", err
	}
	if err := m.store.SetMulti(ctx, map[string]string{m.keys.device: id}); err != nil {
		logging.LogError(ctx, m.logger, "goAuthClient: device id persist failed", err)
	}
	m.deviceID = id
	return id, nil
}
