package goAuthClient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goAuthClient/clock"
	"github.com/MrEthical07/goAuthClient/internal/logging"
	internalmetrics "github.com/MrEthical07/goAuthClient/internal/metrics"
	"github.com/MrEthical07/goAuthClient/sso"
	"github.com/MrEthical07/goAuthClient/tokens"
	"golang.org/x/sync/singleflight"
)

const currentUserFlight = "me"

type subscriber struct {
	id uint64
	fn func(Snapshot)
}

// Client is the session state machine. It owns one token manager, publishes a [Snapshot]
// on every transition, and runs the background renewal scheduler.
//
// Client methods are safe for concurrent use. Issuing Login and Logout concurrently on
// one Client is allowed but the final state is whichever network call resolves last.
type Client struct {
	cfg       Config
	tokens    *tokens.Manager
	backend   Backend
	detector  *sso.Detector
	clock     clock.Clock
	scheduler clock.Scheduler
	logger    *slog.Logger
	metrics   *internalmetrics.Metrics
	events    *eventDispatcher

	onStateChange func(Snapshot)

	mu        sync.Mutex
	snapshot  Snapshot
	subs      []subscriber
	nextSubID uint64
	autoTask  clock.Task
	destroyed bool

	// emitMu serializes transitions so subscribers observe them in order.
	emitMu sync.Mutex

	userFlight    singleflight.Group
	userMu        sync.Mutex
	cachedUser    *User
	userFetchedAt time.Time
	userGen       uint64
}

// TokenManager returns the manager backing this client.
func (c *Client) TokenManager() *tokens.Manager {
	return c.tokens
}

// State returns the current snapshot.
func (c *Client) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Subscribe registers fn for every future transition. Callbacks run synchronously on the
// goroutine performing the transition and must not start another transition on the same
// Client. The returned function removes the subscription and is safe to call twice.
func (c *Client) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return func() {}
	}
	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, s := range c.subs {
				if s.id == id {
					c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Client) publish(next Snapshot) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.snapshot = next
	subs := make([]func(Snapshot), len(c.subs))
	for i, s := range c.subs {
		subs[i] = s.fn
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	if c.onStateChange != nil {
		c.onStateChange(next)
	}
}

func (c *Client) isDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func authenticatedSnapshot(u *User) Snapshot {
	return Snapshot{User: u.clone(), IsAuthenticated: true, State: StateAuthenticated}
}

func mfaPendingSnapshot(u *User) Snapshot {
	return Snapshot{User: u.clone(), MFAPending: true, State: StateMFAPending}
}

func unauthenticatedSnapshot() Snapshot {
	return Snapshot{State: StateUnauthenticated}
}

// beginLoading publishes the current state with IsLoading set and returns the state to
// restore if the operation fails.
func (c *Client) beginLoading() Snapshot {
	prev := c.State()
	next := prev
	next.IsLoading = true
	c.publish(next)
	return prev
}

func (c *Client) restore(prev Snapshot) {
	prev.IsLoading = false
	if prev.State == StateLoading {
		prev = unauthenticatedSnapshot()
	}
	c.publish(prev)
}

func (c *Client) emitEvent(ctx context.Context, eventType string, user *User, err error, metadata map[string]string) {
	if c.events == nil {
		return
	}
	ev := AuthEvent{
		Timestamp: c.clock.Now(),
		EventType: eventType,
		Success:   err == nil,
		Metadata:  metadata,
	}
	if user != nil {
		ev.UserID = user.ID
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.events.Emit(ctx, ev)
}

/*
====================================
INITIALIZATION
====================================
*/

// Initialize restores a persisted session. Without usable credentials the client becomes
// unauthenticated immediately. Otherwise the current user is fetched; a failed fetch
// leaves credentials in place, moves to StateUnauthenticated, and returns the error.
func (c *Client) Initialize(ctx context.Context) error {
	if c.isDestroyed() {
		return ErrClientDestroyed
	}

	if !c.tokens.IsAuthenticated(ctx) {
		c.publish(unauthenticatedSnapshot())
		return nil
	}

	user, err := c.CurrentUser(ctx)
	if err != nil {
		c.metrics.Inc(internalmetrics.SessionRestoreFailure)
		logging.LogError(ctx, c.logger, "goAuthClient: session restore failed", err)
		c.emitEvent(ctx, EventSessionRestore, nil, err, nil)
		c.publish(unauthenticatedSnapshot())
		return err
	}

	c.metrics.Inc(internalmetrics.SessionRestored)
	c.emitEvent(ctx, EventSessionRestore, user, nil, nil)

	if c.tokens.IsMFAPending(ctx) {
		c.publish(mfaPendingSnapshot(user))
		return nil
	}
	c.publish(authenticatedSnapshot(user))
	c.startAutoRefresh()
	return nil
}

/*
====================================
SIGN-IN FLOWS
====================================
*/

type signInKind struct {
	event   string
	success internalmetrics.ID
	failure internalmetrics.ID
}

var (
	loginKind    = signInKind{event: EventLogin, success: internalmetrics.LoginSuccess, failure: internalmetrics.LoginFailure}
	registerKind = signInKind{event: EventRegister, success: internalmetrics.RegisterSuccess, failure: internalmetrics.RegisterFailure}
)

// Login signs in with a password. The result reports an MFA challenge (state
// StateMFAPending) or an emailed-code challenge (state unchanged) when the backend
// requires one. On failure the previous state is restored and the error returned;
// stored credentials are untouched.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if c.isDestroyed() {
		return nil, ErrClientDestroyed
	}

	prev := c.beginLoading()
	resp, err := c.backend.Login(WithoutAuth(ctx), creds)
	if err != nil {
		return nil, c.failSignIn(ctx, loginKind, prev, err)
	}
	return c.completeSignIn(ctx, loginKind, prev, resp)
}

// Register creates an account. When the backend signs the new user in, the client
// authenticates exactly as Login does; otherwise the state is left unchanged.
func (c *Client) Register(ctx context.Context, reg Registration) (*LoginResult, error) {
	if c.isDestroyed() {
		return nil, ErrClientDestroyed
	}

	prev := c.beginLoading()
	resp, err := c.backend.Register(WithoutAuth(ctx), reg)
	if err != nil {
		return nil, c.failSignIn(ctx, registerKind, prev, err)
	}
	if resp.Tokens == nil && !resp.OTPRequired {
		c.restore(prev)
		c.metrics.Inc(internalmetrics.RegisterSuccess)
		c.emitEvent(ctx, EventRegister, resp.User, nil, map[string]string{"signed_in": "false"})
		return &LoginResult{User: resp.User.clone()}, nil
	}
	return c.completeSignIn(ctx, registerKind, prev, resp)
}

func (c *Client) failSignIn(ctx context.Context, kind signInKind, prev Snapshot, err error) error {
	c.restore(prev)
	c.metrics.Inc(kind.failure)
	c.emitEvent(ctx, kind.event, nil, err, nil)
	return err
}

func (c *Client) completeSignIn(ctx context.Context, kind signInKind, prev Snapshot, resp *AuthResponse) (*LoginResult, error) {
	if resp.OTPRequired && resp.Tokens == nil {
		c.restore(prev)
		c.metrics.Inc(internalmetrics.LoginOTPRequired)
		c.emitEvent(ctx, kind.event, resp.User, nil, map[string]string{"challenge": "otp"})
		return &LoginResult{
			User: resp.User.clone(),
			OTPChallenge: &OTPChallenge{
				LoginSessionToken: resp.LoginSessionToken,
				ExpiresIn:         resp.LoginSessionExpiresIn,
				MaskedEmail:       resp.MaskedEmail,
				Message:           resp.Message,
			},
		}, nil
	}

	if resp.Tokens == nil {
		return nil, c.failSignIn(ctx, kind, prev, ErrTokensMissing)
	}
	if err := c.tokens.SetTokens(ctx, *resp.Tokens); err != nil {
		return nil, c.failSignIn(ctx, kind, prev, err)
	}
	c.rememberUser(resp.User)

	if resp.MFARequired {
		if err := c.tokens.SetMFAPending(ctx, true); err != nil {
			logging.LogError(ctx, c.logger, "goAuthClient: mfa flag not persisted", err)
		}
		c.stopAutoRefresh()
		c.publish(mfaPendingSnapshot(resp.User))
		c.metrics.Inc(internalmetrics.LoginMFARequired)
		c.emitEvent(ctx, kind.event, resp.User, nil, map[string]string{"challenge": "mfa"})
		return &LoginResult{User: resp.User.clone(), MFARequired: true}, nil
	}

	if err := c.tokens.SetMFAPending(ctx, false); err != nil {
		logging.LogError(ctx, c.logger, "goAuthClient: mfa flag not cleared", err)
	}
	c.publish(authenticatedSnapshot(resp.User))
	c.startAutoRefresh()
	c.metrics.Inc(kind.success)
	c.emitEvent(ctx, kind.event, resp.User, nil, nil)
	return &LoginResult{User: resp.User.clone()}, nil
}

// exchange trades a one-time proof for a full pair and authenticates.
func (c *Client) exchange(ctx context.Context, event string, call func(context.Context) (*AuthResponse, error)) (*User, error) {
	if c.isDestroyed() {
		return nil, ErrClientDestroyed
	}

	prev := c.beginLoading()
	resp, err := call(ctx)
	if err == nil && resp.Tokens == nil {
		err = ErrTokensMissing
	}
	if err == nil {
		err = c.tokens.SetTokens(ctx, *resp.Tokens)
	}
	if err != nil {
		c.restore(prev)
		c.metrics.Inc(internalmetrics.VerifyFailure)
		c.emitEvent(ctx, event, nil, err, nil)
		return nil, err
	}

	if err := c.tokens.SetMFAPending(ctx, false); err != nil {
		logging.LogError(ctx, c.logger, "goAuthClient: mfa flag not cleared", err)
	}

	user := resp.User
	if user == nil {
		user = prev.User
	}
	if user != nil {
		user = user.clone()
		user.MFAPending = false
	}
	c.rememberUser(user)
	c.publish(authenticatedSnapshot(user))
	c.startAutoRefresh()
	c.metrics.Inc(internalmetrics.VerifySuccess)
	c.emitEvent(ctx, event, user, nil, nil)
	return user.clone(), nil
}

// VerifyMFA completes a second-factor challenge opened by Login.
func (c *Client) VerifyMFA(ctx context.Context, v MFAVerification) (*User, error) {
	if !c.tokens.IsMFAPending(ctx) {
		return nil, ErrNoMFAPending
	}
	return c.exchange(ctx, EventMFAVerify, func(ctx context.Context) (*AuthResponse, error) {
		return c.backend.VerifyMFA(ctx, v)
	})
}

// VerifyOTP exchanges an emailed one-time code for a session.
func (c *Client) VerifyOTP(ctx context.Context, v OTPVerification) (*User, error) {
	return c.exchange(ctx, EventOTPVerify, func(ctx context.Context) (*AuthResponse, error) {
		return c.backend.VerifyOTP(WithoutAuth(ctx), v)
	})
}

// VerifyMagicLink exchanges a magic-link token for a session.
func (c *Client) VerifyMagicLink(ctx context.Context, token string) (*User, error) {
	return c.exchange(ctx, EventMagicLink, func(ctx context.Context) (*AuthResponse, error) {
		return c.backend.VerifyMagicLink(WithoutAuth(ctx), token)
	})
}

// HandleOneTapCredential exchanges a Google One Tap credential for a session.
func (c *Client) HandleOneTapCredential(ctx context.Context, credential string) (*User, error) {
	return c.exchange(ctx, EventOneTap, func(ctx context.Context) (*AuthResponse, error) {
		return c.backend.OneTap(WithoutAuth(ctx), credential)
	})
}

/*
====================================
SIGN-OUT FLOWS
====================================
*/

// Logout ends the session. The scheduler is stopped first and any renewal already in
// flight is allowed to land, so the refresh token sent to the backend is the live one.
// The backend is notified on a best-effort basis without renewing, and local credentials
// are always cleared. Only a failure to clear the local store is returned.
func (c *Client) Logout(ctx context.Context) error {
	c.stopAutoRefresh()
	if err := c.tokens.WaitRefresh(ctx); err != nil {
		logging.LogError(ctx, c.logger, "goAuthClient: logout did not wait for renewal", err)
	}

	user := c.State().User
	if refresh, ok := c.tokens.RefreshToken(ctx); ok {
		if err := c.backend.Logout(WithoutRenewal(ctx), refresh); err != nil {
			c.metrics.Inc(internalmetrics.LogoutBackendFailure)
			logging.LogError(ctx, c.logger, "goAuthClient: backend logout failed", err)
		}
	}

	err := c.tokens.ClearTokens(ctx)
	c.forgetUser()
	c.publish(unauthenticatedSnapshot())
	c.metrics.Inc(internalmetrics.Logout)
	c.emitEvent(ctx, EventLogout, user, err, nil)
	return err
}

// LogoutAll revokes every session of the user on the backend, then performs Logout.
// Local teardown happens even when revocation fails; the revocation error is returned.
func (c *Client) LogoutAll(ctx context.Context) error {
	// Renewal is allowed here: revocation covers whatever pair it produces.
	revokeErr := c.backend.LogoutAll(ctx)
	if revokeErr != nil {
		logging.LogError(ctx, c.logger, "goAuthClient: revoke all sessions failed", revokeErr)
	}
	c.metrics.Inc(internalmetrics.LogoutAll)
	c.emitEvent(ctx, EventLogoutAll, c.State().User, revokeErr, nil)

	return errors.Join(revokeErr, c.Logout(ctx))
}

/*
====================================
RENEWAL
====================================
*/

// RefreshToken renews the pair through the coalescing coordinator. A nil pair with a nil
// error means there is no session; the client becomes unauthenticated. A renewal error
// clears credentials and is returned.
func (c *Client) RefreshToken(ctx context.Context) (*tokens.Pair, error) {
	return c.refresh(ctx, false)
}

func (c *Client) refresh(ctx context.Context, fromScheduler bool) (*tokens.Pair, error) {
	if c.isDestroyed() {
		return nil, ErrClientDestroyed
	}

	pair, err := c.tokens.RefreshTokens(ctx, c.backend.Refresh)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil, err
	}

	user := c.State().User
	if err == nil && pair != nil {
		c.emitEvent(ctx, EventRefresh, user, nil, nil)
		return pair, nil
	}

	// A newer sign-in may have replaced the credentials this renewal started from.
	if c.tokens.IsAuthenticated(ctx) {
		return pair, err
	}

	// Background failures leave the snapshot alone; the next foreground call that finds
	// the credentials gone performs the transition.
	if fromScheduler {
		c.emitEvent(ctx, EventRefresh, user, err, map[string]string{"source": "scheduler"})
		return nil, err
	}

	c.stopAutoRefresh()
	c.forgetUser()
	c.publish(unauthenticatedSnapshot())
	c.emitEvent(ctx, EventRefresh, user, err, nil)
	return nil, err
}

// EnableAutoRefresh starts the background scheduler. It is idempotent.
func (c *Client) EnableAutoRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed || c.autoTask != nil {
		return
	}
	c.autoTask = c.scheduler.Every(c.cfg.AutoRefresh.Interval, c.autoRefreshTick)
}

// DisableAutoRefresh stops the background scheduler. It is idempotent.
func (c *Client) DisableAutoRefresh() {
	c.stopAutoRefresh()
}

// AutoRefreshActive reports whether the scheduler is running.
func (c *Client) AutoRefreshActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoTask != nil
}

func (c *Client) startAutoRefresh() {
	if c.cfg.AutoRefresh.Enabled {
		c.EnableAutoRefresh()
	}
}

// stopAutoRefresh detaches the scheduler task and waits for it. Ticks never call it.
func (c *Client) stopAutoRefresh() {
	c.mu.Lock()
	task := c.autoTask
	c.autoTask = nil
	c.mu.Unlock()

	if task != nil {
		task.Stop()
	}
}

func (c *Client) autoRefreshTick() {
	ctx := context.Background()
	if _, ok := c.tokens.RefreshToken(ctx); !ok {
		return
	}
	if !c.tokens.NeedsRefreshDefault(ctx) {
		return
	}
	if _, err := c.refresh(ctx, true); err != nil {
		c.metrics.Inc(internalmetrics.BackgroundRefreshFailure)
		logging.LogError(ctx, c.logger, "goAuthClient: background refresh failed", err)
	}
}

/*
====================================
CURRENT USER
====================================
*/

// CurrentUser returns the signed-in user. Concurrent calls share one backend request and
// results are reused for Session.UserCacheDuration. A signed-in client whose credentials
// were cleared in the background becomes unauthenticated and gets ErrNotAuthenticated.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	if c.settleLostSession(ctx) {
		return nil, ErrNotAuthenticated
	}

	c.userMu.Lock()
	if c.cachedUser != nil && c.clock.Now().Sub(c.userFetchedAt) < c.cfg.Session.UserCacheDuration {
		u := c.cachedUser.clone()
		c.userMu.Unlock()
		return u, nil
	}
	gen := c.userGen
	c.userMu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := c.userFlight.DoChan(currentUserFlight, func() (any, error) {
		u, err := c.backend.CurrentUser(detached)
		if err != nil {
			return nil, err
		}
		c.userMu.Lock()
		if c.userGen == gen {
			c.cachedUser = u.clone()
			c.userFetchedAt = c.clock.Now()
		}
		c.userMu.Unlock()
		return u, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.Inc(internalmetrics.UserFetchCoalesced)
		}
		if res.Err != nil {
			c.settleLostSession(ctx)
			return nil, res.Err
		}
		u, _ := res.Val.(*User)
		return u.clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settleLostSession moves a signed-in snapshot to unauthenticated once the stored pair
// is gone. It reports whether it did.
func (c *Client) settleLostSession(ctx context.Context) bool {
	if st := c.State().State; st != StateAuthenticated && st != StateMFAPending {
		return false
	}
	if _, ok := c.tokens.Tokens(ctx); ok {
		return false
	}

	user := c.State().User
	c.stopAutoRefresh()
	c.forgetUser()
	c.publish(unauthenticatedSnapshot())
	c.emitEvent(ctx, EventRefresh, user, ErrNotAuthenticated, nil)
	return true
}

func (c *Client) rememberUser(u *User) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	c.userGen++
	c.cachedUser = nil
	if u != nil {
		c.cachedUser = u.clone()
		c.userFetchedAt = c.clock.Now()
	}
}

func (c *Client) forgetUser() {
	c.rememberUser(nil)
}

/*
====================================
SSO & LIFECYCLE
====================================
*/

// DetectSSO reports whether email's domain signs in through SSO. See [sso.Detector].
func (c *Client) DetectSSO(ctx context.Context, email string) (sso.Result, error) {
	if c.detector == nil {
		return sso.Result{}, ErrSSOUnavailable
	}
	return c.detector.Detect(ctx, email)
}

// SSODetector returns the configured detector, or nil.
func (c *Client) SSODetector() *sso.Detector {
	return c.detector
}

// DroppedEvents reports AuthEvents dropped because the buffer was full.
func (c *Client) DroppedEvents() uint64 {
	return c.events.Dropped()
}

// Destroy stops the scheduler, removes all subscribers, and flushes pending events.
// Stored credentials are kept. Destroy is idempotent.
func (c *Client) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.subs = nil
	c.mu.Unlock()

	c.stopAutoRefresh()
	c.events.Close()
}
