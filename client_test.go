package goAuthClient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goAuthClient/clock"
	"github.com/MrEthical07/goAuthClient/internal/authtest"
	"github.com/MrEthical07/goAuthClient/sso"
	"github.com/MrEthical07/goAuthClient/storage"
	"github.com/MrEthical07/goAuthClient/tokens"
)

var errBackendDown = errors.New("backend down")

// fakeBackend mints real JWTs against a fake clock. Each hook may be replaced per test.
type fakeBackend struct {
	clk *clock.Fake

	login        func(Credentials) (*AuthResponse, error)
	register     func(Registration) (*AuthResponse, error)
	currentUser  func() (*User, error)
	logoutErr    error
	logoutAllErr error
	refresh      func(string) (tokens.Pair, error)
	verify       func() (*AuthResponse, error)

	mu    sync.Mutex
	calls map[string]int
}

func newFakeBackend(clk *clock.Fake) *fakeBackend {
	fb := &fakeBackend{clk: clk, calls: make(map[string]int)}
	fb.login = func(c Credentials) (*AuthResponse, error) { return fb.signIn(testUser()), nil }
	fb.currentUser = func() (*User, error) { return testUser(), nil }
	fb.refresh = func(string) (tokens.Pair, error) { return fb.pair(10*time.Minute, time.Hour), nil }
	fb.verify = func() (*AuthResponse, error) { return fb.signIn(testUser()), nil }
	return fb
}

func testUser() *User {
	return &User{ID: "u-1", Email: "alice@acme.com", FirstName: "Alice"}
}

func (fb *fakeBackend) pair(accessTTL, refreshTTL time.Duration) tokens.Pair {
	access, refresh := authtest.MintPair("u-1", fb.clk.Now(), accessTTL, refreshTTL)
	return tokens.Pair{AccessToken: access, RefreshToken: refresh}
}

func (fb *fakeBackend) signIn(u *User) *AuthResponse {
	p := fb.pair(10*time.Minute, time.Hour)
	return &AuthResponse{User: u, Tokens: &p}
}

func (fb *fakeBackend) count(name string) {
	fb.mu.Lock()
	fb.calls[name]++
	fb.mu.Unlock()
}

func (fb *fakeBackend) Calls(name string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.calls[name]
}

func (fb *fakeBackend) Login(_ context.Context, c Credentials) (*AuthResponse, error) {
	fb.count("login")
	return fb.login(c)
}

func (fb *fakeBackend) Register(_ context.Context, r Registration) (*AuthResponse, error) {
	fb.count("register")
	return fb.register(r)
}

func (fb *fakeBackend) CurrentUser(context.Context) (*User, error) {
	fb.count("me")
	return fb.currentUser()
}

func (fb *fakeBackend) Logout(context.Context, string) error {
	fb.count("logout")
	return fb.logoutErr
}

func (fb *fakeBackend) LogoutAll(context.Context) error {
	fb.count("logout_all")
	return fb.logoutAllErr
}

func (fb *fakeBackend) Refresh(_ context.Context, refreshToken string) (tokens.Pair, error) {
	fb.count("refresh")
	return fb.refresh(refreshToken)
}

func (fb *fakeBackend) VerifyMFA(context.Context, MFAVerification) (*AuthResponse, error) {
	fb.count("verify_mfa")
	return fb.verify()
}

func (fb *fakeBackend) VerifyOTP(context.Context, OTPVerification) (*AuthResponse, error) {
	fb.count("verify_otp")
	return fb.verify()
}

func (fb *fakeBackend) VerifyMagicLink(context.Context, string) (*AuthResponse, error) {
	fb.count("magic_link")
	return fb.verify()
}

func (fb *fakeBackend) OneTap(context.Context, string) (*AuthResponse, error) {
	fb.count("one_tap")
	return fb.verify()
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) states() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func buildTestClient(t testing.TB, configure func(*Builder)) (*Client, *fakeBackend, *clock.Fake) {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	fb := newFakeBackend(clk)
	b := New().
		WithBackend(fb).
		WithStore(storage.NewMemoryStore()).
		WithClock(clk)
	if configure != nil {
		configure(b)
	}

	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Destroy)
	return c, fb, clk
}

func mustInitialize(t *testing.T, c *Client) {
	t.Helper()
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
}

func TestBuildStartsLoading(t *testing.T) {
	c, _, _ := buildTestClient(t, nil)

	s := c.State()
	if s.State != StateLoading || !s.IsLoading {
		t.Fatalf("expected loading snapshot, got %+v", s)
	}
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	clk := clock.NewFake(time.Now())

	if _, err := New().Build(); err == nil {
		t.Fatal("expected error without backend")
	}

	tm := tokens.NewManager(storage.NewMemoryStore(), tokens.Config{})
	_, err := New().WithBackend(newFakeBackend(clk)).WithStore(storage.NewMemoryStore()).WithTokenManager(tm).Build()
	if err == nil {
		t.Fatal("expected error for store and token manager together")
	}

	cfg := DefaultConfig()
	cfg.Tokens.KeyPrefix = ""
	if _, err := New().WithBackend(newFakeBackend(clk)).WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected config validation error")
	}

	b := New().WithBackend(newFakeBackend(clk)).WithClock(clk)
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer c.Destroy()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error when reusing builder")
	}
}

func TestInitializeWithoutTokens(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	rec := &recorder{}
	c.Subscribe(rec.record)

	mustInitialize(t, c)

	s := c.State()
	if s.State != StateUnauthenticated || s.IsLoading || s.IsAuthenticated {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if got := len(rec.states()); got != 1 {
		t.Fatalf("expected 1 transition, got %d", got)
	}
	if fb.Calls("me") != 0 {
		t.Fatal("no user fetch expected without tokens")
	}
}

func TestInitializeRestoresSession(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	ctx := context.Background()
	if err := c.TokenManager().SetTokens(ctx, fb.pair(10*time.Minute, time.Hour)); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	mustInitialize(t, c)

	s := c.State()
	if s.State != StateAuthenticated || !s.IsAuthenticated {
		t.Fatalf("expected authenticated, got %+v", s)
	}
	if s.User == nil || s.User.ID != "u-1" {
		t.Fatalf("unexpected user %+v", s.User)
	}
	if !c.AutoRefreshActive() {
		t.Fatal("expected auto refresh after restore")
	}
	if got := c.MetricValue(MetricSessionRestored); got != 1 {
		t.Fatalf("expected 1 restore, got %d", got)
	}
}

func TestInitializeRestoresMFAPending(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	ctx := context.Background()
	tm := c.TokenManager()
	if err := tm.SetTokens(ctx, fb.pair(10*time.Minute, time.Hour)); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}
	if err := tm.SetMFAPending(ctx, true); err != nil {
		t.Fatalf("SetMFAPending failed: %v", err)
	}

	mustInitialize(t, c)

	s := c.State()
	if s.State != StateMFAPending || !s.MFAPending || s.IsAuthenticated {
		t.Fatalf("expected mfa pending, got %+v", s)
	}
	if c.AutoRefreshActive() {
		t.Fatal("auto refresh must not run while MFA is pending")
	}
}

func TestInitializeFetchFailureKeepsCredentials(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	ctx := context.Background()
	if err := c.TokenManager().SetTokens(ctx, fb.pair(10*time.Minute, time.Hour)); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}
	fb.currentUser = func() (*User, error) { return nil, errBackendDown }

	if err := c.Initialize(ctx); !errors.Is(err, errBackendDown) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if c.State().State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", c.State().State)
	}
	if _, ok := c.TokenManager().Tokens(ctx); !ok {
		t.Fatal("credentials must survive a failed restore")
	}
}

func TestInitializeExpiredSession(t *testing.T) {
	c, fb, clk := buildTestClient(t, nil)
	ctx := context.Background()
	if err := c.TokenManager().SetTokens(ctx, fb.pair(time.Minute, 2*time.Minute)); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}
	clk.Set(clk.Now().Add(time.Hour))

	mustInitialize(t, c)
	if c.State().State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", c.State().State)
	}
	if fb.Calls("me") != 0 {
		t.Fatal("expired session must not be fetched")
	}
}

func TestLoginTransitions(t *testing.T) {
	c, _, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	rec := &recorder{}
	c.Subscribe(rec.record)

	res, err := c.Login(context.Background(), Credentials{Email: "alice@acme.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.MFARequired || res.OTPChallenge != nil || res.User.ID != "u-1" {
		t.Fatalf("unexpected result %+v", res)
	}

	got := rec.states()
	if len(got) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(got))
	}
	if !got[0].IsLoading || got[0].State != StateUnauthenticated {
		t.Fatalf("first transition should be loading, got %+v", got[0])
	}
	if got[1].IsLoading || got[1].State != StateAuthenticated || !got[1].IsAuthenticated {
		t.Fatalf("second transition should be authenticated, got %+v", got[1])
	}
	if !c.AutoRefreshActive() {
		t.Fatal("expected auto refresh after login")
	}
	if got := c.MetricValue(MetricLoginSuccess); got != 1 {
		t.Fatalf("expected 1 login success, got %d", got)
	}
}

func TestLoginFailureRestoresPreviousState(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	before, _ := c.TokenManager().Tokens(ctx)

	fb.login = func(Credentials) (*AuthResponse, error) { return nil, errBackendDown }
	if _, err := c.Login(ctx, Credentials{Email: "bob@acme.com", Password: "x"}); !errors.Is(err, errBackendDown) {
		t.Fatalf("expected backend error, got %v", err)
	}

	s := c.State()
	if s.State != StateAuthenticated || s.IsLoading {
		t.Fatalf("expected authenticated state restored, got %+v", s)
	}
	after, _ := c.TokenManager().Tokens(ctx)
	if after != before {
		t.Fatal("failed login must not touch stored credentials")
	}
	if got := c.MetricValue(MetricLoginFailure); got != 1 {
		t.Fatalf("expected 1 login failure, got %d", got)
	}
}

func TestLoginWithoutTokensFails(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	fb.login = func(Credentials) (*AuthResponse, error) { return &AuthResponse{User: testUser()}, nil }

	if _, err := c.Login(context.Background(), Credentials{Email: "a@b.c"}); !errors.Is(err, ErrTokensMissing) {
		t.Fatalf("expected ErrTokensMissing, got %v", err)
	}
	if c.State().State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", c.State().State)
	}
}

func TestLoginMFAThenVerify(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	fb.login = func(Credentials) (*AuthResponse, error) {
		resp := fb.signIn(testUser())
		resp.MFARequired = true
		return resp, nil
	}

	res, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.MFARequired {
		t.Fatal("expected MFARequired")
	}
	if s := c.State(); s.State != StateMFAPending || !s.MFAPending || s.IsAuthenticated {
		t.Fatalf("expected mfa pending, got %+v", s)
	}
	if !c.TokenManager().IsMFAPending(ctx) {
		t.Fatal("expected persisted MFA flag")
	}
	if c.AutoRefreshActive() {
		t.Fatal("auto refresh must wait for MFA")
	}

	user, err := c.VerifyMFA(ctx, MFAVerification{Code: "123456"})
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if user.MFAPending {
		t.Fatal("verified user must not be pending")
	}
	if s := c.State(); s.State != StateAuthenticated || s.MFAPending {
		t.Fatalf("expected authenticated, got %+v", s)
	}
	if c.TokenManager().IsMFAPending(ctx) {
		t.Fatal("MFA flag must be cleared")
	}
	if !c.AutoRefreshActive() {
		t.Fatal("expected auto refresh after MFA")
	}
}

func TestVerifyMFAWithoutChallenge(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	mustInitialize(t, c)

	if _, err := c.VerifyMFA(context.Background(), MFAVerification{Code: "1"}); !errors.Is(err, ErrNoMFAPending) {
		t.Fatalf("expected ErrNoMFAPending, got %v", err)
	}
	if fb.Calls("verify_mfa") != 0 {
		t.Fatal("backend must not be called")
	}
}

func TestVerifyFailureRestoresMFAPending(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	fb.login = func(Credentials) (*AuthResponse, error) {
		resp := fb.signIn(testUser())
		resp.MFARequired = true
		return resp, nil
	}
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	fb.verify = func() (*AuthResponse, error) { return nil, errBackendDown }
	if _, err := c.VerifyMFA(ctx, MFAVerification{Code: "000000"}); !errors.Is(err, errBackendDown) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if s := c.State(); s.State != StateMFAPending || s.IsLoading {
		t.Fatalf("expected mfa pending restored, got %+v", s)
	}
	if got := c.MetricValue(MetricVerifyFailure); got != 1 {
		t.Fatalf("expected 1 verify failure, got %d", got)
	}
}

func TestLoginOTPChallengeThenVerify(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	fb.login = func(Credentials) (*AuthResponse, error) {
		return &AuthResponse{
			OTPRequired:           true,
			LoginSessionToken:     "ls-1",
			LoginSessionExpiresIn: 10 * time.Minute,
			MaskedEmail:           "a****@acme.com",
		}, nil
	}

	res, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.OTPChallenge == nil || res.OTPChallenge.LoginSessionToken != "ls-1" {
		t.Fatalf("expected OTP challenge, got %+v", res)
	}
	if s := c.State(); s.State != StateUnauthenticated || s.IsLoading {
		t.Fatalf("expected unauthenticated, got %+v", s)
	}
	if _, ok := c.TokenManager().Tokens(ctx); ok {
		t.Fatal("no credentials expected before OTP verification")
	}

	if _, err := c.VerifyOTP(ctx, OTPVerification{OTP: "654321", LoginSessionToken: "ls-1"}); err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	if c.State().State != StateAuthenticated {
		t.Fatalf("expected authenticated, got %v", c.State().State)
	}
}

func TestExchangeFlowsAuthenticate(t *testing.T) {
	flows := []struct {
		name string
		call func(*Client) (*User, error)
		hook string
	}{
		{"magic link", func(c *Client) (*User, error) { return c.VerifyMagicLink(context.Background(), "tok") }, "magic_link"},
		{"one tap", func(c *Client) (*User, error) { return c.HandleOneTapCredential(context.Background(), "cred") }, "one_tap"},
	}

	for _, tc := range flows {
		t.Run(tc.name, func(t *testing.T) {
			c, fb, _ := buildTestClient(t, nil)
			mustInitialize(t, c)

			user, err := tc.call(c)
			if err != nil {
				t.Fatalf("exchange failed: %v", err)
			}
			if user.ID != "u-1" || fb.Calls(tc.hook) != 1 {
				t.Fatalf("unexpected user %+v or call count %d", user, fb.Calls(tc.hook))
			}
			if c.State().State != StateAuthenticated {
				t.Fatalf("expected authenticated, got %v", c.State().State)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	t.Run("signs in", func(t *testing.T) {
		c, fb, _ := buildTestClient(t, nil)
		mustInitialize(t, c)
		fb.register = func(Registration) (*AuthResponse, error) { return fb.signIn(testUser()), nil }

		if _, err := c.Register(context.Background(), Registration{Email: "alice@acme.com", Password: "pw"}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if c.State().State != StateAuthenticated {
			t.Fatalf("expected authenticated, got %v", c.State().State)
		}
		if got := c.MetricValue(MetricRegisterSuccess); got != 1 {
			t.Fatalf("expected 1 register success, got %d", got)
		}
	})

	t.Run("requires email verification", func(t *testing.T) {
		c, fb, _ := buildTestClient(t, nil)
		mustInitialize(t, c)
		fb.register = func(Registration) (*AuthResponse, error) {
			return &AuthResponse{User: testUser(), Message: "check your inbox"}, nil
		}

		res, err := c.Register(context.Background(), Registration{Email: "alice@acme.com", Password: "pw"})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if res.User == nil || res.User.Email != "alice@acme.com" {
			t.Fatalf("unexpected result %+v", res)
		}
		if s := c.State(); s.State != StateUnauthenticated || s.IsLoading {
			t.Fatalf("expected unauthenticated, got %+v", s)
		}
	})

	t.Run("failure", func(t *testing.T) {
		c, fb, _ := buildTestClient(t, nil)
		mustInitialize(t, c)
		fb.register = func(Registration) (*AuthResponse, error) { return nil, errBackendDown }

		if _, err := c.Register(context.Background(), Registration{}); !errors.Is(err, errBackendDown) {
			t.Fatalf("expected backend error, got %v", err)
		}
		if got := c.MetricValue(MetricRegisterFailure); got != 1 {
			t.Fatalf("expected 1 register failure, got %d", got)
		}
	})
}

func TestLogoutClearsEvenWhenBackendFails(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	fb.logoutErr = errBackendDown

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout returned %v", err)
	}
	if fb.Calls("logout") != 1 {
		t.Fatal("expected backend logout")
	}
	if _, ok := c.TokenManager().Tokens(ctx); ok {
		t.Fatal("credentials must be cleared")
	}
	if s := c.State(); s.State != StateUnauthenticated || s.User != nil {
		t.Fatalf("expected unauthenticated, got %+v", s)
	}
	if c.AutoRefreshActive() {
		t.Fatal("auto refresh must stop on logout")
	}
	if got := c.MetricValue(MetricLogoutBackendFailure); got != 1 {
		t.Fatalf("expected 1 backend failure, got %d", got)
	}
}

func TestLogoutWithoutSessionSkipsBackend(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	mustInitialize(t, c)

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout returned %v", err)
	}
	if fb.Calls("logout") != 0 {
		t.Fatal("backend logout needs a refresh token")
	}
}

func TestLogoutAllReturnsRevocationError(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	fb.logoutAllErr = errBackendDown

	if err := c.LogoutAll(ctx); !errors.Is(err, errBackendDown) {
		t.Fatalf("expected revocation error, got %v", err)
	}
	if _, ok := c.TokenManager().Tokens(ctx); ok {
		t.Fatal("credentials must be cleared")
	}
	if c.State().State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", c.State().State)
	}
}

func TestRefreshTokenWithoutSession(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)

	pair, err := c.RefreshToken(context.Background())
	if err != nil || pair != nil {
		t.Fatalf("expected nil pair and nil error, got %v, %v", pair, err)
	}
	if c.State().State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", c.State().State)
	}
	if fb.Calls("refresh") != 0 {
		t.Fatal("backend must not be called without a refresh token")
	}
}

func TestRefreshTokenFailureSignsOut(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	fb.refresh = func(string) (tokens.Pair, error) { return tokens.Pair{}, errBackendDown }

	if _, err := c.RefreshToken(ctx); !errors.Is(err, errBackendDown) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if c.State().State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", c.State().State)
	}
	if c.AutoRefreshActive() {
		t.Fatal("auto refresh must stop after a failed renewal")
	}
}

func TestRefreshTokenSuccessKeepsState(t *testing.T) {
	c, _, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	rec := &recorder{}
	c.Subscribe(rec.record)

	pair, err := c.RefreshToken(ctx)
	if err != nil || pair == nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}
	stored, _ := c.TokenManager().Tokens(ctx)
	if stored != *pair {
		t.Fatal("renewed pair must be stored")
	}
	if len(rec.states()) != 0 {
		t.Fatal("a successful renewal is not a state transition")
	}
}

func TestBuildRejectsDivergentTokenManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tokens.RefreshThreshold = time.Minute
	cfg.Tokens.KeyPrefix = "tenant-a:"

	stale := tokens.NewManager(storage.NewMemoryStore(), tokens.Config{})
	_, err := New().WithBackend(newFakeBackend(nil)).WithConfig(cfg).WithTokenManager(stale).Build()
	if err == nil {
		t.Fatal("expected error for a manager built without Config.Tokens")
	}

	tm := tokens.NewManager(storage.NewMemoryStore(), cfg.Tokens.ManagerConfig())
	c, err := New().WithBackend(newFakeBackend(nil)).WithConfig(cfg).WithTokenManager(tm).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer c.Destroy()
	if got := c.TokenManager().RefreshThreshold(); got != time.Minute {
		t.Fatalf("expected 1m threshold, got %s", got)
	}
	if got := c.TokenManager().KeyPrefix(); got != "tenant-a:" {
		t.Fatalf("expected tenant-a: prefix, got %q", got)
	}
}

func TestAutoRefreshRenewsStaleToken(t *testing.T) {
	c, fb, clk := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	clk.Advance(3 * time.Minute)
	if got := fb.Calls("refresh"); got != 0 {
		t.Fatalf("fresh token renewed early: %d calls", got)
	}

	clk.Advance(3 * time.Minute)
	if got := fb.Calls("refresh"); got != 1 {
		t.Fatalf("expected 1 background renewal, got %d", got)
	}
	if c.State().State != StateAuthenticated {
		t.Fatalf("expected authenticated, got %v", c.State().State)
	}
	if c.TokenManager().NeedsRefreshDefault(ctx) {
		t.Fatal("renewed token should be fresh")
	}
}

func TestAutoRefreshFailureKeepsVisibleState(t *testing.T) {
	c, fb, clk := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	rec := &recorder{}
	c.Subscribe(rec.record)
	fb.refresh = func(string) (tokens.Pair, error) { return tokens.Pair{}, errBackendDown }

	clk.Advance(6 * time.Minute)

	if c.State().State != StateAuthenticated {
		t.Fatalf("background failure must not change state, got %v", c.State().State)
	}
	if n := len(rec.states()); n != 0 {
		t.Fatalf("expected no transitions, got %d", n)
	}
	if got := c.MetricValue(MetricBackgroundRefreshFailure); got != 1 {
		t.Fatalf("expected 1 background failure, got %d", got)
	}
	if got := fb.Calls("refresh"); got != 1 {
		t.Fatalf("expected 1 renewal attempt, got %d", got)
	}
	if _, ok := c.TokenManager().Tokens(ctx); ok {
		t.Fatal("failed renewal must clear credentials")
	}

	if _, err := c.CurrentUser(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if c.State().State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", c.State().State)
	}
	if c.AutoRefreshActive() {
		t.Fatal("auto refresh must stop once the session is gone")
	}
	if got := fb.Calls("me"); got != 0 {
		t.Fatalf("lost session must not reach the backend, got %d calls", got)
	}
}

func TestForegroundRefreshSettlesBackgroundFailure(t *testing.T) {
	c, fb, clk := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	fb.refresh = func(string) (tokens.Pair, error) { return tokens.Pair{}, errBackendDown }
	clk.Advance(6 * time.Minute)
	if c.State().State != StateAuthenticated {
		t.Fatalf("expected authenticated after background failure, got %v", c.State().State)
	}

	pair, err := c.RefreshToken(ctx)
	if err != nil || pair != nil {
		t.Fatalf("expected no session, got %v, %v", pair, err)
	}
	if c.State().State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", c.State().State)
	}
	if got := fb.Calls("refresh"); got != 1 {
		t.Fatalf("cleared session must not renew again, got %d calls", got)
	}
}

func TestAutoRefreshToggle(t *testing.T) {
	c, _, clk := buildTestClient(t, nil)

	c.EnableAutoRefresh()
	c.EnableAutoRefresh()
	if !c.AutoRefreshActive() || clk.ActiveTasks() != 1 {
		t.Fatalf("expected one scheduled task, got %d", clk.ActiveTasks())
	}
	c.DisableAutoRefresh()
	c.DisableAutoRefresh()
	if c.AutoRefreshActive() || clk.ActiveTasks() != 0 {
		t.Fatalf("expected no scheduled tasks, got %d", clk.ActiveTasks())
	}
}

func TestAutoRefreshDisabledByConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoRefresh.Enabled = false
	c, _, _ := buildTestClient(t, func(b *Builder) { b.WithConfig(cfg) })
	mustInitialize(t, c)

	if _, err := c.Login(context.Background(), Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if c.AutoRefreshActive() {
		t.Fatal("auto refresh disabled by config")
	}
}

func TestSubscribersRunInOrderAndUnsubscribe(t *testing.T) {
	var mu sync.Mutex
	var order []string
	var handlerCalls atomic.Int32
	c, _, _ := buildTestClient(t, func(b *Builder) {
		b.WithStateChangeHandler(func(Snapshot) {
			handlerCalls.Add(1)
			mu.Lock()
			order = append(order, "handler")
			mu.Unlock()
		})
	})

	add := func(name string) func() {
		return c.Subscribe(func(Snapshot) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		})
	}
	add("first")
	unsubscribe := add("second")

	mustInitialize(t, c)
	unsubscribe()
	unsubscribe()
	_ = c.Logout(context.Background())

	want := []string{"first", "second", "handler", "first", "handler"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
	if handlerCalls.Load() != 2 {
		t.Fatalf("expected 2 handler calls, got %d", handlerCalls.Load())
	}
}

func TestSnapshotUserIsIsolated(t *testing.T) {
	c, _, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	if _, err := c.Login(context.Background(), Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	s := c.State()
	s.User.FirstName = "Mallory"
	if c.State().User.FirstName != "Alice" {
		t.Fatal("snapshot user must not alias client state")
	}
}

func TestDestroy(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	rec := &recorder{}
	c.Subscribe(rec.record)

	c.Destroy()
	c.Destroy()

	if c.AutoRefreshActive() {
		t.Fatal("auto refresh must stop")
	}
	if _, err := c.Login(ctx, Credentials{}); !errors.Is(err, ErrClientDestroyed) {
		t.Fatalf("expected ErrClientDestroyed, got %v", err)
	}
	if err := c.Initialize(ctx); !errors.Is(err, ErrClientDestroyed) {
		t.Fatalf("expected ErrClientDestroyed, got %v", err)
	}
	if _, err := c.RefreshToken(ctx); !errors.Is(err, ErrClientDestroyed) {
		t.Fatalf("expected ErrClientDestroyed, got %v", err)
	}
	_ = c.Logout(ctx)
	if len(rec.states()) != 0 {
		t.Fatal("no transitions may be published after Destroy")
	}
	if fb.Calls("login") != 1 {
		t.Fatal("backend must not be used after Destroy")
	}
}

func TestCurrentUserCoalescesAndCaches(t *testing.T) {
	c, fb, clk := buildTestClient(t, nil)
	gate := make(chan struct{})
	fb.currentUser = func() (*User, error) {
		<-gate
		return testUser(), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := c.CurrentUser(context.Background())
			if err == nil && u.ID != "u-1" {
				err = errors.New("wrong user")
			}
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("CurrentUser failed: %v", err)
		}
	}
	if got := fb.Calls("me"); got != 1 {
		t.Fatalf("expected 1 backend call, got %d", got)
	}

	if _, err := c.CurrentUser(context.Background()); err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if got := fb.Calls("me"); got != 1 {
		t.Fatalf("expected cached user, got %d calls", got)
	}

	clk.Advance(11 * time.Second)
	if _, err := c.CurrentUser(context.Background()); err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if got := fb.Calls("me"); got != 2 {
		t.Fatalf("expected refetch after cache expiry, got %d calls", got)
	}
}

func TestCurrentUserCacheResetOnLogout(t *testing.T) {
	c, fb, _ := buildTestClient(t, nil)
	mustInitialize(t, c)
	ctx := context.Background()
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := c.CurrentUser(ctx); err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if fb.Calls("me") != 0 {
		t.Fatal("login should seed the user cache")
	}

	_ = c.Logout(ctx)
	fb.currentUser = func() (*User, error) { return nil, errBackendDown }
	if _, err := c.CurrentUser(ctx); !errors.Is(err, errBackendDown) {
		t.Fatalf("expected fetch after logout, got %v", err)
	}
}

func TestDetectSSO(t *testing.T) {
	c, _, _ := buildTestClient(t, nil)
	if _, err := c.DetectSSO(context.Background(), "a@acme.com"); !errors.Is(err, ErrSSOUnavailable) {
		t.Fatalf("expected ErrSSOUnavailable, got %v", err)
	}

	var lookups atomic.Int32
	lookup := sso.LookupFunc(func(_ context.Context, email string) (sso.Result, error) {
		lookups.Add(1)
		return sso.Result{HasSSO: true, Provider: &sso.Provider{ID: "okta"}}, nil
	})
	c, _, _ = buildTestClient(t, func(b *Builder) { b.WithSSOLookup(lookup) })

	for i := 0; i < 3; i++ {
		r, err := c.DetectSSO(context.Background(), "alice@acme.com")
		if err != nil || !r.HasSSO {
			t.Fatalf("unexpected result %+v, %v", r, err)
		}
	}
	if lookups.Load() != 1 {
		t.Fatalf("expected cached lookups, got %d", lookups.Load())
	}
	if c.SSODetector() == nil {
		t.Fatal("expected detector")
	}
}
