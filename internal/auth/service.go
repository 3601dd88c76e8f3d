package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/pawhub/pawhub/internal/platform/errutil"
	"github.com/pawhub/pawhub/internal/platform/httpx"
	"github.com/pawhub/pawhub/internal/shared"
)

// ForgotPasswordMessage is returned by ForgotPassword whether or not the
// email belongs to an account.
const ForgotPasswordMessage = "If an account with that email exists, a password reset link has been sent."

// Outcomes reported to a Recorder.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Mailer delivers the emails carrying raw verification and reset tokens.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email, rawToken, displayName string) error
	SendPasswordResetEmail(ctx context.Context, email, rawToken string) error
}

// Recorder receives one event per operation with its outcome.
type Recorder interface {
	AuthEvent(operation, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) AuthEvent(string, string) {}

// ServiceConfig collects the collaborators of a Service. Repo, Mailer and
// Issuer are required; the rest fall back to defaults.
type ServiceConfig struct {
	Repo     Repository
	Mailer   Mailer
	Issuer   *TokenIssuer
	Hasher   PasswordHasher
	Throttle LoginThrottle
	Recorder Recorder
	Logger   *slog.Logger
	Clock    func() time.Time

	VerificationTTL time.Duration
	ResetTTL        time.Duration
	MailTimeout     time.Duration
}

// Service owns the credential and session lifecycle: registration, login,
// refresh rotation, logout, password reset and email verification.
type Service struct {
	repo     Repository
	mailer   Mailer
	issuer   *TokenIssuer
	hasher   PasswordHasher
	throttle LoginThrottle
	recorder Recorder
	logger   *slog.Logger
	clock    func() time.Time

	verificationTTL time.Duration
	resetTTL        time.Duration
	mailTimeout     time.Duration

	// dummyHash is verified against when a login names an unknown email so
	// both failure paths cost one bcrypt comparison.
	dummyHash string
	inflight  sync.WaitGroup
}

// NewService validates cfg and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil || cfg.Mailer == nil || cfg.Issuer == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG_INVALID").Errorf("repository, mailer and token issuer are required")
	}
	s := &Service{
		repo:            cfg.Repo,
		mailer:          cfg.Mailer,
		issuer:          cfg.Issuer,
		hasher:          cfg.Hasher,
		throttle:        cfg.Throttle,
		recorder:        cfg.Recorder,
		logger:          cfg.Logger,
		clock:           cfg.Clock,
		verificationTTL: cfg.VerificationTTL,
		resetTTL:        cfg.ResetTTL,
		mailTimeout:     cfg.MailTimeout,
	}
	if s.hasher == nil {
		s.hasher = NewBcryptHasher(0)
	}
	if s.throttle == nil {
		s.throttle = noopThrottle{}
	}
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.verificationTTL <= 0 {
		s.verificationTTL = 24 * time.Hour
	}
	if s.resetTTL <= 0 {
		s.resetTTL = time.Hour
	}
	if s.mailTimeout <= 0 {
		s.mailTimeout = 30 * time.Second
	}
	dummy, err := s.hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG_INVALID").With("operation", "dummy hash").Wrap(err)
	}
	s.dummyHash = dummy
	s.logger = s.logger.With(slog.String("component", "auth"))
	return s, nil
}

// Register creates an unverified account, opens its first session and sends
// the verification email in the background.
func (s *Service) Register(ctx context.Context, in RegisterInput) (result *AuthResult, err error) {
	defer func() { s.observe("register", err) }()

	if !in.TermsAccepted {
		return nil, ErrTermsNotAccepted
	}
	role := in.Role
	if role == "" {
		role = RoleOwner
	}
	if !role.selfAssignable() {
		return nil, ErrInvalidRole
	}
	email := NormalizeEmail(in.Email)
	username := NormalizeUsername(in.Username)
	if err := s.ensureAvailable(ctx, email, username); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.fail("register", err)
	}
	rawToken, digest, err := newOpaqueToken()
	if err != nil {
		return nil, s.fail("register", err)
	}

	userID := uuid.NewString()
	tokens, refreshDigest, err := s.issuePair(userID)
	if err != nil {
		return nil, s.fail("register", err)
	}

	now := s.now()
	expiresAt := now.Add(s.verificationTTL)
	user := &User{
		ID:                         userID,
		Email:                      email,
		Username:                   username,
		PasswordHash:               passwordHash,
		FirstName:                  strings.TrimSpace(in.FirstName),
		LastName:                   strings.TrimSpace(in.LastName),
		Role:                       role,
		Phone:                      optionalString(in.Phone),
		AvatarURL:                  optionalString(in.AvatarURL),
		TermsAcceptedAt:            now,
		RefreshTokenHash:           &refreshDigest,
		EmailVerificationTokenHash: &digest,
		EmailVerificationExpiresAt: &expiresAt,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
	// One write: the account, its first session and its verification token
	// exist together or not at all.
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, s.fail("register", err)
	}

	s.dispatch(ctx, "verification", user.ID, func(ctx context.Context) error {
		return s.mailer.SendVerificationEmail(ctx, user.Email, rawToken, user.DisplayName())
	})
	s.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("role", string(role)))
	return &AuthResult{User: user.Public(), TokenPair: *tokens}, nil
}

func (s *Service) ensureAvailable(ctx context.Context, email, username string) error {
	_, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		return ErrEmailTaken
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return s.fail("register", err)
	}
	_, err = s.repo.FindByUsername(ctx, username)
	if err == nil {
		return ErrUsernameTaken
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return s.fail("register", err)
	}
	return nil
}

// Login checks credentials and rotates the session. Unknown emails and
// wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (result *AuthResult, err error) {
	defer func() { s.observe("login", err) }()

	email = NormalizeEmail(email)
	locked, err := s.throttle.Locked(ctx, email)
	if err != nil {
		s.logger.Warn("login throttle unavailable", slog.Any("error", err))
	} else if locked {
		return nil, ErrLoginLocked
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, shared.ErrNotFound) {
		_, _ = s.hasher.Verify(password, s.dummyHash)
		s.recordLoginFailure(ctx, email)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, s.fail("login", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, s.fail("login", err)
	}
	if !ok {
		s.recordLoginFailure(ctx, email)
		return nil, ErrInvalidCredentials
	}
	if err := s.throttle.Reset(ctx, email); err != nil {
		s.logger.Warn("login throttle reset failed", slog.Any("error", err))
	}

	tokens, err := s.generateTokens(ctx, user.ID)
	if err != nil {
		return nil, s.fail("login", err)
	}
	return &AuthResult{User: user.Public(), TokenPair: *tokens}, nil
}

func (s *Service) recordLoginFailure(ctx context.Context, email string) {
	if err := s.throttle.RecordFailure(ctx, email); err != nil {
		s.logger.Warn("login throttle record failed", slog.Any("error", err))
	}
}

// RefreshTokens exchanges a refresh token for a new pair. The presented
// token stops working once this returns successfully. Every rejection is
// ErrInvalidRefreshToken.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	defer func() { s.observe("refresh", err) }()

	claims, err := s.issuer.Verify(RefreshToken, refreshToken)
	if err != nil || uuid.Validate(claims.Subject) != nil {
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.repo.FindByID(ctx, claims.Subject)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, s.fail("refresh", err)
	}
	if !tokenMatches(refreshToken, user.RefreshTokenHash) {
		return nil, ErrInvalidRefreshToken
	}

	pair, digest, err := s.issuePair(user.ID)
	if err != nil {
		return nil, s.fail("refresh", err)
	}
	// Only one of two concurrent refreshes with the same token can win.
	err = s.repo.Update(ctx, user.ID, NewPatch().
		SetRefreshTokenHash(digest).
		WhereRefreshTokenHash(*user.RefreshTokenHash))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, s.fail("refresh", err)
	}
	return pair, nil
}

// Logout clears the stored refresh token hash. Logging out without an
// active session, or for an unknown user, is not an error.
func (s *Service) Logout(ctx context.Context, userID string) (err error) {
	defer func() { s.observe("logout", err) }()

	err = s.repo.Update(ctx, userID, NewPatch().ClearRefreshTokenHash())
	if err == nil || errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	return s.fail("logout", err)
}

// ForgotPassword starts a password reset when email belongs to an account.
// The returned message is ForgotPasswordMessage in both cases.
func (s *Service) ForgotPassword(ctx context.Context, email string) (msg string, err error) {
	defer func() { s.observe("forgot_password", err) }()

	rawToken, digest, err := newOpaqueToken()
	if err != nil {
		return "", s.fail("forgot_password", err)
	}
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, shared.ErrNotFound) {
		return ForgotPasswordMessage, nil
	}
	if err != nil {
		return "", s.fail("forgot_password", err)
	}

	expiresAt := s.now().Add(s.resetTTL)
	if err := s.repo.Update(ctx, user.ID, NewPatch().SetResetToken(digest, expiresAt)); err != nil {
		return "", s.fail("forgot_password", err)
	}
	s.dispatch(ctx, "password_reset", user.ID, func(ctx context.Context) error {
		return s.mailer.SendPasswordResetEmail(ctx, user.Email, rawToken)
	})
	return ForgotPasswordMessage, nil
}

// ResetPassword sets a new password for the holder of an unexpired reset
// token. The token is consumed.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() { s.observe("reset_password", err) }()

	user, err := s.matchPending(ctx, PendingPasswordReset, token)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.fail("reset_password", err)
	}
	err = s.repo.Update(ctx, user.ID, NewPatch().
		SetPasswordHash(hash).
		ClearResetToken().
		WhereResetTokenHash(*user.ResetPasswordTokenHash))
	if errors.Is(err, shared.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return s.fail("reset_password", err)
	}
	s.logger.Info("password reset", slog.String("user_id", user.ID))
	return nil
}

// VerifyEmail marks the holder of an unexpired verification token as
// verified. The token is consumed.
func (s *Service) VerifyEmail(ctx context.Context, token string) (verified *PublicUser, err error) {
	defer func() { s.observe("verify_email", err) }()

	user, err := s.matchPending(ctx, PendingEmailVerification, token)
	if err != nil {
		return nil, err
	}
	patch := NewPatch().
		MarkEmailVerified().
		ClearVerificationToken().
		WhereVerificationTokenHash(*user.EmailVerificationTokenHash)
	err = s.repo.Update(ctx, user.ID, patch)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, s.fail("verify_email", err)
	}
	patch.Apply(user, s.now())
	s.logger.Info("email verified", slog.String("user_id", user.ID))
	return user.Public(), nil
}

// ResendVerificationEmail replaces any outstanding verification token and
// sends a new one.
func (s *Service) ResendVerificationEmail(ctx context.Context, email string) (err error) {
	defer func() { s.observe("resend_verification", err) }()

	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, shared.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return s.fail("resend_verification", err)
	}
	if user.IsEmailVerified {
		return ErrAlreadyVerified
	}

	rawToken, digest, err := newOpaqueToken()
	if err != nil {
		return s.fail("resend_verification", err)
	}
	expiresAt := s.now().Add(s.verificationTTL)
	if err := s.repo.Update(ctx, user.ID, NewPatch().SetVerificationToken(digest, expiresAt)); err != nil {
		return s.fail("resend_verification", err)
	}
	s.dispatch(ctx, "verification", user.ID, func(ctx context.Context) error {
		return s.mailer.SendVerificationEmail(ctx, user.Email, rawToken, user.DisplayName())
	})
	return nil
}

// AuthenticateAccessToken returns the user id carried by a valid access
// token.
func (s *Service) AuthenticateAccessToken(token string) (string, error) {
	claims, err := s.issuer.Verify(AccessToken, token)
	if err != nil {
		return "", ErrInvalidAccessToken
	}
	return claims.Subject, nil
}

// PurgeExpiredTokens clears reset and verification tokens past their expiry.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	cleared, err := s.repo.ClearExpiredTokens(ctx, s.now())
	if err != nil {
		return 0, s.fail("purge_tokens", err)
	}
	return cleared, nil
}

// generateTokens issues a pair for userID and stores the refresh digest,
// replacing whatever session the user had.
func (s *Service) generateTokens(ctx context.Context, userID string) (*TokenPair, error) {
	pair, digest, err := s.issuePair(userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, userID, NewPatch().SetRefreshTokenHash(digest)); err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *Service) issuePair(userID string) (*TokenPair, string, error) {
	access, err := s.issuer.Issue(AccessToken, userID)
	if err != nil {
		return nil, "", err
	}
	refresh, err := s.issuer.Issue(RefreshToken, userID)
	if err != nil {
		return nil, "", err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.issuer.TTL(AccessToken).Seconds()),
	}, digestToken(refresh), nil
}

// matchPending scans users holding an unexpired token of kind and returns
// the first whose digest matches token.
func (s *Service) matchPending(ctx context.Context, kind PendingKind, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	now := s.now()
	candidates, err := s.repo.FindPending(ctx, kind, now)
	if err != nil {
		return nil, s.fail(kind.String(), err)
	}
	for _, candidate := range candidates {
		if pendingFor(candidate, kind, now) && tokenMatches(token, pendingDigest(candidate, kind)) {
			return candidate, nil
		}
	}
	return nil, ErrInvalidToken
}

// dispatch runs send on a detached goroutine. Failures are logged and
// counted, never returned.
func (s *Service) dispatch(ctx context.Context, kind, userID string, send func(context.Context) error) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("email dispatch panicked", slog.String("kind", kind), slog.Any("panic", r))
			}
		}()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mailTimeout)
		defer cancel()
		if err := send(sendCtx); err != nil {
			errutil.LogError(s.logger, "email dispatch failed", oops.
				Code("AUTH_EMAIL_DISPATCH_FAILED").
				With("kind", kind).
				With("user_id", userID).
				Wrap(err))
			s.recorder.AuthEvent("email_"+kind, OutcomeError)
			return
		}
		s.recorder.AuthEvent("email_"+kind, OutcomeSuccess)
	}()
}

// Wait blocks until every in-flight email dispatch has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// Drain is Wait bounded by ctx.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) observe(operation string, err error) {
	switch {
	case err == nil:
		s.recorder.AuthEvent(operation, OutcomeSuccess)
	case httpx.IsClientError(err):
		s.recorder.AuthEvent(operation, OutcomeRejected)
	default:
		s.recorder.AuthEvent(operation, OutcomeError)
	}
}

// fail passes client errors through and wraps anything else with an
// operation code.
func (s *Service) fail(operation string, err error) error {
	if httpx.IsClientError(err) {
		return err
	}
	return oops.
		Code("AUTH_"+strings.ToUpper(operation)+"_FAILED").
		With("operation", operation).
		Wrap(err)
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}
