// Package services contains server-side business logic. This file implements
// AuthService: the credential check, the temporary-token TOTP challenge and
// the sessions it finally yields.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/dbx"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/dmitrijs2005/gophblog/internal/server/auth"
	"github.com/dmitrijs2005/gophblog/internal/server/config"
	"github.com/dmitrijs2005/gophblog/internal/server/models"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// SignInKind tells the caller what a successful first step produced.
type SignInKind string

const (
	// SignInAuthenticated means a session was created.
	SignInAuthenticated SignInKind = "authenticated"
	// SignInSecondFactorRequired means a challenge was issued and a TOTP
	// code must follow.
	SignInSecondFactorRequired SignInKind = "second_factor_required"
)

// SessionToken is a signed session token and its expiry.
type SessionToken struct {
	Token     string
	ExpiresAt time.Time
}

// Challenge is the temporary token bridging the password and TOTP steps.
type Challenge struct {
	Token     string
	ExpiresAt time.Time
}

// SignInResult holds exactly one of Session or Challenge, as named by Kind.
type SignInResult struct {
	Kind      SignInKind
	Session   *SessionToken
	Challenge *Challenge
}

// Principal is an authenticated caller.
type Principal struct {
	UserID    string
	SessionID string
}

// TOTPSetup is what a user needs to enrol an authenticator app.
type TOTPSetup struct {
	Secret string
	URI    string
	QRPNG  []byte
}

// QRSize is the edge length, in pixels, of provisioning QR codes.
const QRSize = 256

type AuthService struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	logger            logging.Logger
	jwtSecret         []byte
	sessionValidity   time.Duration
	tempTokenValidity time.Duration
	totpIssuer        string
	nowFn             func() time.Time
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *AuthService {
	return &AuthService{
		db:                db,
		repomanager:       m,
		logger:            logger.With("module", "auth"),
		jwtSecret:         []byte(cfg.SecretKey),
		sessionValidity:   cfg.SessionValidityDuration,
		tempTokenValidity: cfg.TempTokenValidityDuration,
		totpIssuer:        cfg.TOTPIssuer,
		nowFn:             time.Now,
	}
}

// Register creates a user with a bcrypt password hash and no second factor.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrValidation)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{Email: email, PasswordHash: hash})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// Verify checks email and password. Unknown users and wrong passwords both
// yield common.ErrInvalidCredentials after the same amount of hashing work.
func (s *AuthService) Verify(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			auth.BurnPasswordCheck(password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, common.ErrInvalidCredentials
	}
	return user, nil
}

// SignIn runs the password step. Users without a second factor get a
// session; the rest get a challenge and no session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	user, err := s.Verify(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled() {
		ch, err := s.IssueChallenge(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return &SignInResult{Kind: SignInSecondFactorRequired, Challenge: ch}, nil
	}

	var session *SessionToken
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		session, err = s.createSession(ctx, tx, user.ID)
		return err
	}); err != nil {
		return nil, err
	}
	return &SignInResult{Kind: SignInAuthenticated, Session: session}, nil
}

// IssueChallenge stores a fresh temporary token on the user, replacing any
// earlier one, so only the latest sign-in attempt can be completed.
func (s *AuthService) IssueChallenge(ctx context.Context, userID string) (*Challenge, error) {
	token, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	expires := s.nowFn().Add(s.tempTokenValidity)

	if err := s.repomanager.Users(s.db).SetTempToken(ctx, userID, token, expires); err != nil {
		return nil, fmt.Errorf("error storing challenge: %w", err)
	}
	return &Challenge{Token: token, ExpiresAt: expires}, nil
}

// CheckChallenge reports whether token names an outstanding, unexpired
// challenge. It guards the challenge view.
func (s *AuthService) CheckChallenge(ctx context.Context, token string) error {
	_, err := s.findChallenge(ctx, token)
	return err
}

// RedeemChallenge exchanges a temporary token and a TOTP code for a session.
//
// A wrong code leaves the token usable until it expires. A right code
// clears the token with a compare-and-delete in the same transaction that
// creates the session, so a token is redeemed at most once even under
// concurrent requests.
func (s *AuthService) RedeemChallenge(ctx context.Context, token, code string) (*SessionToken, error) {
	if !auth.ValidCodeFormat(code) {
		return nil, fmt.Errorf("%w: code must be %d digits", common.ErrValidation, auth.CodeLength)
	}

	user, err := s.findChallenge(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	if !user.TwoFactorEnabled() || !auth.ValidateCode(code, *user.TOTPSecret, now) {
		s.logger.Info(ctx, "second factor rejected", "user_id", user.ID)
		return nil, common.ErrInvalidCode
	}

	var session *SessionToken
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ok, err := s.repomanager.Users(tx).ConsumeTempToken(ctx, user.ID, token, now)
		if err != nil {
			return fmt.Errorf("error consuming challenge: %w", err)
		}
		if !ok {
			return common.ErrTokenNotFound
		}
		session, err = s.createSession(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Authenticate resolves a session token to its principal. The signature,
// the expiry and the server-side session row must all check out.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := auth.ParseSessionToken(token, s.jwtSecret)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	session, err := s.repomanager.Sessions(s.db).Find(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if session.UserID != claims.UserID || !session.Expires.After(s.nowFn()) {
		return nil, common.ErrorUnauthorized
	}

	return &Principal{UserID: session.UserID, SessionID: session.ID}, nil
}

// SignOut revokes a session.
func (s *AuthService) SignOut(ctx context.Context, sessionID string) error {
	if err := s.repomanager.Sessions(s.db).Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes session rows past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).DeleteExpired(ctx, s.nowFn())
	if err != nil {
		return 0, fmt.Errorf("error purging sessions: %w", err)
	}
	return n, nil
}

// BeginTOTPSetup generates a secret for the user without storing it. The
// secret takes effect only through EnableTOTP.
func (s *AuthService) BeginTOTPSetup(ctx context.Context, userID string) (*TOTPSetup, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	e, err := auth.GenerateSecret(s.totpIssuer, user.Email)
	if err != nil {
		return nil, fmt.Errorf("error generating secret: %w", err)
	}
	png, err := auth.RenderQR(e.URI, QRSize)
	if err != nil {
		return nil, fmt.Errorf("error rendering qr: %w", err)
	}
	return &TOTPSetup{Secret: e.Secret, URI: e.URI, QRPNG: png}, nil
}

// EnableTOTP stores secret once the user proves possession with code.
func (s *AuthService) EnableTOTP(ctx context.Context, userID, secret, code string) error {
	if secret == "" || !auth.ValidCodeFormat(code) {
		return fmt.Errorf("%w: secret and a %d-digit code are required", common.ErrValidation, auth.CodeLength)
	}
	if !auth.ValidateCode(code, secret, s.nowFn()) {
		return common.ErrInvalidCode
	}
	return s.repomanager.Users(s.db).SetTOTPSecret(ctx, userID, &secret)
}

// DisableTOTP removes the second factor after checking a current code.
func (s *AuthService) DisableTOTP(ctx context.Context, userID, code string) error {
	if !auth.ValidCodeFormat(code) {
		return fmt.Errorf("%w: code must be %d digits", common.ErrValidation, auth.CodeLength)
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("error loading user: %w", err)
	}
	if !user.TwoFactorEnabled() || !auth.ValidateCode(code, *user.TOTPSecret, s.nowFn()) {
		return common.ErrInvalidCode
	}
	return repo.SetTOTPSecret(ctx, userID, nil)
}

// --- helpers below ---

func (s *AuthService) findChallenge(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrTokenNotFound
	}

	user, err := s.repomanager.Users(s.db).FindByTempToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if user.TempTokenExpiresAt == nil || s.nowFn().After(*user.TempTokenExpiresAt) {
		return nil, common.ErrTokenExpired
	}
	return user, nil
}

func (s *AuthService) createSession(ctx context.Context, tx dbx.DBTX, userID string) (*SessionToken, error) {
	sessionID := uuid.NewString()
	expires := s.nowFn().Add(s.sessionValidity)

	if err := s.repomanager.Sessions(tx).Create(ctx, sessionID, userID, expires); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	token, err := auth.GenerateSessionToken(userID, sessionID, s.jwtSecret, expires)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &SessionToken{Token: token, ExpiresAt: expires}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
