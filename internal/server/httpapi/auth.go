package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/server/services"
)

// ChallengePath is where a browser completes the second sign-in step.
const ChallengePath = "/auth/2fa"

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totpCode"`
}

type signInResponse struct {
	Kind     services.SignInKind `json:"kind"`
	Redirect string              `json:"redirect,omitempty"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body", common.ErrValidation)
	}
	return nil
}

// signIn handles both steps. A body with email and password runs the
// password step; a body with only totpCode redeems the challenge named by
// the temporary-token cookie.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	passwordStep := req.Email != "" || req.Password != ""
	codeStep := req.TOTPCode != ""
	if passwordStep == codeStep {
		s.writeError(w, r, fmt.Errorf("%w: send either email and password, or totpCode", common.ErrValidation))
		return
	}

	if codeStep {
		s.redeem(w, r, req.TOTPCode)
		return
	}

	res, err := s.deps.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.signInFailed(w, r, err)
		return
	}

	switch res.Kind {
	case services.SignInSecondFactorRequired:
		setCookie(w, r, common.TempTokenCookieName, res.Challenge.Token, res.Challenge.ExpiresAt)
		s.deps.Metrics.signIn("second_factor_required")
		writeJSON(w, http.StatusOK, signInResponse{Kind: res.Kind, Redirect: ChallengePath})
	default:
		setCookie(w, r, common.SessionCookieName, res.Session.Token, res.Session.ExpiresAt)
		s.deps.Metrics.signIn("authenticated")
		writeJSON(w, http.StatusOK, signInResponse{Kind: services.SignInAuthenticated})
	}
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request, code string) {
	var token string
	if c, err := r.Cookie(common.TempTokenCookieName); err == nil {
		token = c.Value
	}

	session, err := s.deps.Auth.RedeemChallenge(r.Context(), token, code)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) || errors.Is(err, common.ErrTokenNotFound) {
			clearCookie(w, r, common.TempTokenCookieName)
		}
		s.signInFailed(w, r, err)
		return
	}

	clearCookie(w, r, common.TempTokenCookieName)
	setCookie(w, r, common.SessionCookieName, session.Token, session.ExpiresAt)
	s.deps.Metrics.signIn("authenticated")
	writeJSON(w, http.StatusOK, signInResponse{Kind: services.SignInAuthenticated})
}

func (s *Server) signInFailed(w http.ResponseWriter, r *http.Request, err error) {
	outcome := "error"
	switch {
	case errors.Is(err, common.ErrInvalidCredentials):
		outcome = "invalid_credentials"
	case errors.Is(err, common.ErrInvalidCode):
		outcome = "invalid_code"
	case errors.Is(err, common.ErrTokenExpired):
		outcome = "token_expired"
	case errors.Is(err, common.ErrTokenNotFound):
		outcome = "token_not_found"
	case errors.Is(err, common.ErrValidation):
		outcome = "malformed"
	}
	s.deps.Metrics.signIn(outcome)
	s.logger.Info(r.Context(), "sign-in rejected", "outcome", outcome, "error", err)
	s.writeError(w, r, err)
}

const challengeHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>Two-factor sign-in</title></head>
<body>
<form id="f"><label>Authentication code
<input id="c" name="totpCode" inputmode="numeric" autocomplete="one-time-code" pattern="[0-9]{6}" maxlength="6" autofocus required>
</label><button type="submit">Verify</button></form>
<p id="e" role="alert"></p>
<script>
const f=document.getElementById('f'),c=document.getElementById('c'),e=document.getElementById('e');
async function go(ev){if(ev)ev.preventDefault();
const r=await fetch('/api/auth/signin',{method:'POST',headers:{'Content-Type':'application/json'},body:JSON.stringify({totpCode:c.value})});
const b=await r.json();if(r.ok){location.href='/';}else{e.textContent=b.error;c.value='';}}
f.addEventListener('submit',go);c.addEventListener('input',()=>{if(/^[0-9]{6}$/.test(c.value))go();});
</script>
</body></html>
`

const forbiddenHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>Forbidden</title></head>
<body><p>This sign-in attempt is no longer valid. <a href="/">Sign in again</a>.</p></body></html>
`

// challengePage serves the code form only while a challenge is outstanding.
func (s *Server) challengePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	var token string
	if c, err := r.Cookie(common.TempTokenCookieName); err == nil {
		token = c.Value
	}

	if err := s.deps.Auth.CheckChallenge(r.Context(), token); err != nil {
		switch {
		case errors.Is(err, common.ErrTokenExpired), errors.Is(err, common.ErrTokenNotFound):
			if token != "" {
				clearCookie(w, r, common.TempTokenCookieName)
			}
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, forbiddenHTML)
		default:
			s.logger.Error(r.Context(), "challenge lookup failed", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	_, _ = io.WriteString(w, challengeHTML)
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request, p *services.Principal) {
	if err := s.deps.Auth.SignOut(r.Context(), p.SessionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	clearCookie(w, r, common.SessionCookieName)
	w.WriteHeader(http.StatusNoContent)
}

type totpSetupResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
	QRPNG  []byte `json:"qrPng"`
}

func (s *Server) totpSetup(w http.ResponseWriter, r *http.Request, p *services.Principal) {
	setup, err := s.deps.Auth.BeginTOTPSetup(r.Context(), p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, totpSetupResponse{Secret: setup.Secret, URI: setup.URI, QRPNG: setup.QRPNG})
}

type totpRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

func (s *Server) totpEnable(w http.ResponseWriter, r *http.Request, p *services.Principal) {
	var req totpRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Auth.EnableTOTP(r.Context(), p.UserID, strings.TrimSpace(req.Secret), strings.TrimSpace(req.Code)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info(r.Context(), "second factor enabled", "user_id", p.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) totpDisable(w http.ResponseWriter, r *http.Request, p *services.Principal) {
	var req totpRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Auth.DisableTOTP(r.Context(), p.UserID, strings.TrimSpace(req.Code)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info(r.Context(), "second factor disabled", "user_id", p.UserID)
	w.WriteHeader(http.StatusNoContent)
}
