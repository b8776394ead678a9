package authtest

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func expiry(token string) (time.Time, bool) {
	c := &claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, c); err != nil || c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid body")
		return
	}
	ident := req.Email
	if ident == "" {
		ident = req.Username
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[strings.ToLower(ident)]
	if u == nil || !u.checkPassword(req.Password) {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
		return
	}

	if u.OTP {
		session := uuid.NewString()
		s.otpSessions[session] = u.ID
		writeJSON(w, http.StatusOK, map[string]any{
			"requires":              map[string]any{"otp": true},
			"loginSessionToken":     session,
			"loginSessionExpiresIn": 600,
			"email":                 maskEmail(u.Email),
			"message":               "verification code sent",
		})
		return
	}

	resp := s.tokenResponseLocked(u, u.MFA)
	if u.MFA {
		resp["mfaRequired"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Username  string `json:"username"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if !decode(r, &req) || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required")
		return
	}

	s.mu.Lock()
	if _, exists := s.users[strings.ToLower(req.Email)]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "USER_EXISTS", "account already exists")
		return
	}
	s.mu.Unlock()

	u := s.AddUser(User{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.RegisterIssuesTokens {
		writeJSON(w, http.StatusCreated, map[string]any{
			"user":    userJSON(u, false),
			"message": "check your inbox to verify your email",
		})
		return
	}
	writeJSON(w, http.StatusCreated, s.tokenResponseLocked(u, false))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.authorizedLocked(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userJSON(u, false)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.access, bearer(r))
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if decode(r, &req) {
		delete(s.refresh, req.RefreshToken)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.authorizedLocked(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	s.revokeUserLocked(u.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken      string `json:"refreshToken"`
		RefreshTokenSnake string `json:"refresh_token"`
	}
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid body")
		return
	}
	tok := req.RefreshToken
	if tok == "" {
		tok = req.RefreshTokenSnake
	}

	s.mu.Lock()
	gate := s.refreshGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uid, ok := s.refresh[tok]
	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "refresh token is invalid or already used")
		return
	}
	delete(s.refresh, tok)
	if exp, ok := expiry(tok); !ok || !exp.After(s.Now()) {
		writeError(w, http.StatusUnauthorized, "REFRESH_TOKEN_EXPIRED", "refresh token expired")
		return
	}

	access, refresh := s.issueLocked(uid, s.AccessTTL, s.RefreshTTL)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    int(s.AccessTTL.Seconds()),
	})
}

func (s *Server) handleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code   string `json:"code"`
		Method string `json:"method"`
	}
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.authorizedLocked(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	if req.Code != MFACode {
		writeError(w, http.StatusUnauthorized, "INVALID_MFA_CODE", "invalid verification code")
		return
	}
	delete(s.access, bearer(r))
	writeJSON(w, http.StatusOK, s.tokenResponseLocked(u, false))
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email             string `json:"email"`
		OTP               string `json:"otp"`
		Purpose           string `json:"purpose"`
		LoginSessionToken string `json:"loginSessionToken"`
	}
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var u *User
	if req.LoginSessionToken != "" {
		if uid, ok := s.otpSessions[req.LoginSessionToken]; ok {
			u = s.userByIDLocked(uid)
		}
	} else {
		u = s.users[strings.ToLower(req.Email)]
	}
	if u == nil {
		writeError(w, http.StatusBadRequest, "INVALID_SESSION", "login session expired")
		return
	}
	if req.OTP != OTPCode {
		writeError(w, http.StatusBadRequest, "INVALID_OTP", "invalid verification code")
		return
	}
	delete(s.otpSessions, req.LoginSessionToken)
	writeJSON(w, http.StatusOK, s.tokenResponseLocked(u, false))
}

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string `json:"email"`
		Purpose string `json:"purpose"`
	}
	if !decode(r, &req) || req.Email == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(req.Email)
	if s.otpSends[email] >= OTPSendLimit {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many codes requested")
		return
	}
	s.otpSends[email]++
	writeJSON(w, http.StatusOK, map[string]any{"message": "verification code sent", "expiresIn": 600})
}

func (s *Server) handleSendMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		RedirectURL string `json:"redirectUrl"`
	}
	if !decode(r, &req) || req.Email == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email is required")
		return
	}

	s.mu.Lock()
	s.magicLinks[uuid.NewString()] = strings.ToLower(req.Email)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"message": "magic link sent"})
}

func (s *Server) handleVerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.magicLinks[req.Token]
	u := s.users[email]
	if !ok || u == nil {
		writeError(w, http.StatusUnauthorized, "INVALID_MAGIC_LINK", "magic link is invalid or expired")
		return
	}
	delete(s.magicLinks, req.Token)
	writeJSON(w, http.StatusOK, s.tokenResponseLocked(u, false))
}

func (s *Server) handleOneTap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credential string `json:"credential"`
	}
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[s.oneTap[req.Credential]]
	if u == nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIAL", "google credential rejected")
		return
	}
	writeJSON(w, http.StatusOK, s.tokenResponseLocked(u, false))
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid body")
		return
	}
	at := strings.LastIndex(req.Email, "@")
	domain := strings.ToLower(req.Email[at+1:])

	s.mu.Lock()
	provider, ok := s.sso[domain]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"hasSSO": false, "allowPassword": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hasSSO":        true,
		"allowPassword": false,
		"domain":        domain,
		"provider":      provider,
	})
}
