package authtest

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const verificationLinkTTL = 24 * time.Hour

// LastVerificationToken returns a pending email-verification token for email, or "".
func (s *Server) LastVerificationToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, e := range s.verifyLinks {
		if e == strings.ToLower(email) {
			return tok
		}
	}
	return ""
}

func (s *Server) issueVerificationLocked(email string) time.Time {
	s.verifyLinks[uuid.NewString()] = strings.ToLower(email)
	return s.Now().Add(verificationLinkTTL).UTC()
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.authorizedLocked(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	if u.EmailVerified {
		writeError(w, http.StatusBadRequest, "ALREADY_VERIFIED", "email already verified")
		return
	}
	exp := s.issueVerificationLocked(u.Email)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "verification email sent",
		"expiresAt": exp.Format(time.RFC3339),
	})
}

// handleRequestVerification answers the same way whether or not the address exists.
func (s *Server) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(r, &req) || req.Email == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if u := s.users[strings.ToLower(req.Email)]; u != nil && !u.EmailVerified {
		s.issueVerificationLocked(u.Email)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "if the address exists, a verification email was sent"})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.verifyLinks[req.Token]
	u := s.users[email]
	if !ok || u == nil {
		writeError(w, http.StatusBadRequest, "INVALID_TOKEN", "verification link is invalid or expired")
		return
	}
	delete(s.verifyLinks, req.Token)
	u.EmailVerified = true
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "email verified", "user": userJSON(u, false)})
}

func (s *Server) handleOTPStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.authorizedLocked(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	data := map[string]any{"attemptsRemaining": OTPSendLimit - s.otpSends[strings.ToLower(u.Email)]}
	if s.otpSends[strings.ToLower(u.Email)] > 0 {
		data["resetTime"] = s.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}
