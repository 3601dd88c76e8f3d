package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawhub/pawhub/internal/auth"
)

type discardMailer struct{}

func (discardMailer) SendVerificationEmail(context.Context, string, string, string) error { return nil }
func (discardMailer) SendPasswordResetEmail(context.Context, string, string) error        { return nil }

func TestNewAuthServiceFromConfig(t *testing.T) {
	cfg := &Config{
		StoreDriver:          StoreDriverMemory,
		JWTAccessSecret:      "access-secret-value",
		JWTRefreshSecret:     "refresh-secret-value",
		JWTIssuer:            "pawhub",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      24 * time.Hour,
		EmailVerificationTTL: 24 * time.Hour,
		PasswordResetTTL:     time.Hour,
		BcryptCost:           4,
	}
	logger := slog.Default()
	repo, release, err := OpenRepository(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer release()
	_, ok := repo.(*auth.MemoryRepository)
	assert.True(t, ok)

	svc, err := NewAuthService(cfg, logger, AuthDeps{Repo: repo, Mailer: discardMailer{}})
	require.NoError(t, err)
	t.Cleanup(svc.Wait)

	result, err := svc.Register(context.Background(), auth.RegisterInput{
		Email:         "a@x.com",
		Username:      "alice",
		Password:      "Secr3t!",
		TermsAccepted: true,
	})
	require.NoError(t, err)
	subject, err := svc.AuthenticateAccessToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, subject)
	assert.Equal(t, int64(900), result.ExpiresIn)
}

func TestNewAuthServiceRejectsSharedSecret(t *testing.T) {
	cfg := &Config{
		JWTAccessSecret:  "same",
		JWTRefreshSecret: "same",
		AccessTokenTTL:   time.Minute,
		RefreshTokenTTL:  time.Hour,
	}
	_, err := NewAuthService(cfg, slog.Default(), AuthDeps{Repo: auth.NewMemoryRepository(), Mailer: discardMailer{}})
	assert.Error(t, err)
}

func TestMailConfigDurations(t *testing.T) {
	cfg := MailConfig(&Config{
		AppPublicURL:         "https://pawhub.test",
		EmailVerificationTTL: 24 * time.Hour,
		PasswordResetTTL:     time.Hour,
	})
	assert.Equal(t, "24 hours", cfg.VerificationValid)
	assert.Equal(t, "1 hour", cfg.ResetValid)
	assert.Equal(t, "90 minutes", humanDuration(90*time.Minute))
	assert.Equal(t, "1m30s", humanDuration(90*time.Second))
}
