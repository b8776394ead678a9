package authtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// MFACode is the only second-factor code the fake accepts.
	MFACode = "123456"
	// OTPCode is the only emailed one-time code the fake accepts.
	OTPCode = "654321"

	// OTPSendLimit is how many emailed codes one address may request.
	OTPSendLimit = 5

	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// User is an account known to the fake backend.
type User struct {
	ID       string
	Email    string
	Username string
	// Password is hashed with argon2id by AddUser and cleared from the stored copy.
	Password  string
	FirstName string
	LastName  string
	Role      string
	// MFA makes password login return tokens with mfaRequired set.
	MFA bool
	// OTP makes password login answer with an emailed-code challenge instead of tokens.
	OTP bool
	// EmailVerified is set once a verification link is redeemed.
	EmailVerified bool

	passwordHash string
}

// SSOProvider is what /auth/sso/detect reports for a registered domain.
type SSOProvider struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
}

type failure struct {
	status int
	code   string
}

// Server is a fake auth backend. Refresh tokens rotate on use: presenting a refresh token
// a second time fails with 401, exactly like the real API.
type Server struct {
	*httptest.Server

	// AccessTTL and RefreshTTL control minted token lifetimes.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now is the clock used for minting and expiry checks.
	Now func() time.Time
	// RegisterIssuesTokens makes /auth/register sign the new user in.
	RegisterIssuesTokens bool

	mu          sync.Mutex
	users       map[string]*User
	access      map[string]string
	refresh     map[string]string
	otpSessions map[string]string
	magicLinks  map[string]string
	verifyLinks map[string]string
	otpSends    map[string]int
	oneTap      map[string]string
	sso         map[string]SSOProvider
	failures    map[string]failure
	calls       map[string]int
	refreshGate chan struct{}
}

// New starts a fake backend. Callers must Close it.
func New() *Server {
	s := &Server{
		AccessTTL:   defaultAccessTTL,
		RefreshTTL:  defaultRefreshTTL,
		Now:         time.Now,
		users:       make(map[string]*User),
		access:      make(map[string]string),
		refresh:     make(map[string]string),
		otpSessions: make(map[string]string),
		magicLinks:  make(map[string]string),
		verifyLinks: make(map[string]string),
		otpSends:    make(map[string]int),
		oneTap:      make(map[string]string),
		sso:         make(map[string]SSOProvider),
		failures:    make(map[string]failure),
		calls:       make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("GET /auth/me", s.handleMe)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/logout-all", s.handleLogoutAll)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/mfa/verify", s.handleVerifyMFA)
	mux.HandleFunc("POST /auth/verify-otp", s.handleVerifyOTP)
	mux.HandleFunc("POST /auth/send-otp", s.handleSendOTP)
	mux.HandleFunc("POST /auth/magic-link/send", s.handleSendMagicLink)
	mux.HandleFunc("POST /auth/magic-link/verify", s.handleVerifyMagicLink)
	mux.HandleFunc("POST /auth/google/one-tap", s.handleOneTap)
	mux.HandleFunc("POST /auth/sso/detect", s.handleDetect)
	mux.HandleFunc("GET /auth/otp-status", s.handleOTPStatus)
	mux.HandleFunc("POST /auth/resend-verification", s.handleResendVerification)
	mux.HandleFunc("POST /auth/request-verification-email", s.handleRequestVerification)
	mux.HandleFunc("POST /auth/verify-email", s.handleVerifyEmail)

	s.Server = httptest.NewServer(s.instrument(mux))
	return s
}

// AddUser registers an account. Missing IDs are generated.
func (s *Server) AddUser(u User) *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = "member"
	}
	if u.Password != "" {
		encoded, err := hashPassword(u.Password)
		if err != nil {
			panic(fmt.Sprintf("authtest: hash password: %v", err))
		}
		u.passwordHash = encoded
		u.Password = ""
	}
	stored := u
	s.users[strings.ToLower(u.Email)] = &stored
	if u.Username != "" {
		s.users[strings.ToLower(u.Username)] = &stored
	}
	return &stored
}

// AddSSODomain makes /auth/sso/detect report provider for domain.
func (s *Server) AddSSODomain(domain string, provider SSOProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sso[strings.ToLower(domain)] = provider
}

// AddOneTapCredential maps a Google credential to an existing account email.
func (s *Server) AddOneTapCredential(credential, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oneTap[credential] = strings.ToLower(email)
}

// IssuePair mints and registers a pair for uid with explicit lifetimes.
func (s *Server) IssuePair(uid string, accessTTL, refreshTTL time.Duration) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(uid, accessTTL, refreshTTL)
}

func (s *Server) issueLocked(uid string, accessTTL, refreshTTL time.Duration) (string, string) {
	access, refresh := MintPair(uid, s.Now(), accessTTL, refreshTTL)
	s.access[access] = uid
	s.refresh[refresh] = uid
	return access, refresh
}

// LastMagicLink returns the most recent magic-link token sent to email.
func (s *Server) LastMagicLink(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, e := range s.magicLinks {
		if e == strings.ToLower(email) {
			return tok
		}
	}
	return ""
}

// Fail makes every request to path answer status with code until Recover is called.
func (s *Server) Fail(path string, status int, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = failure{status: status, code: code}
}

// Recover removes an injected failure.
func (s *Server) Recover(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, path)
}

// HoldRefresh makes /auth/refresh block until the returned function is called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.refreshGate == gate {
				s.refreshGate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// ValidRefreshTokens returns how many refresh tokens are currently accepted.
func (s *Server) ValidRefreshTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refresh)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		f, failing := s.failures[r.URL.Path]
		s.mu.Unlock()

		if failing {
			writeError(w, f.status, f.code, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": true, "code": code, "message": message})
}

func decode(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

func userJSON(u *User, mfaPending bool) map[string]any {
	return map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"username":   u.Username,
		"firstName":  u.FirstName,
		"lastName":   u.LastName,
		"role":       u.Role,
		"mfaEnabled": u.MFA,
		"mfaPending": mfaPending,

		"isEmailVerified": u.EmailVerified,
	}
}

func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 1 {
		return email
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}

func (s *Server) userByIDLocked(uid string) *User {
	for _, u := range s.users {
		if u.ID == uid {
			return u
		}
	}
	return nil
}

// authorizedLocked resolves the bearer token of r to a user, or nil.
func (s *Server) authorizedLocked(r *http.Request) *User {
	tok := bearer(r)
	uid, ok := s.access[tok]
	if !ok {
		return nil
	}
	if exp, ok := expiry(tok); !ok || !exp.After(s.Now()) {
		return nil
	}
	return s.userByIDLocked(uid)
}

func (s *Server) revokeUserLocked(uid string) {
	for tok, id := range s.access {
		if id == uid {
			delete(s.access, tok)
		}
	}
	for tok, id := range s.refresh {
		if id == uid {
			delete(s.refresh, tok)
		}
	}
}

func (s *Server) tokenResponseLocked(u *User, mfaPending bool) map[string]any {
	access, refresh := s.issueLocked(u.ID, s.AccessTTL, s.RefreshTTL)
	return map[string]any{
		"user":         userJSON(u, mfaPending),
		"accessToken":  access,
		"refreshToken": refresh,
		"expiresIn":    int(s.AccessTTL.Seconds()),
	}
}
