package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pawhub/pawhub/internal/auth"
	"github.com/pawhub/pawhub/internal/mail"
	"github.com/pawhub/pawhub/internal/platform/db"
)

// AuthDeps are the collaborators wired around the auth service.
type AuthDeps struct {
	Repo     auth.Repository
	Mailer   auth.Mailer
	Throttle auth.LoginThrottle
	Recorder auth.Recorder
}

// NewAuthService builds the token issuer and the auth service from config.
func NewAuthService(cfg *Config, logger *slog.Logger, deps AuthDeps) (*auth.Service, error) {
	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.JWTIssuer,
	})
	if err != nil {
		return nil, err
	}
	return auth.NewService(auth.ServiceConfig{
		Repo:            deps.Repo,
		Mailer:          deps.Mailer,
		Issuer:          issuer,
		Hasher:          auth.NewBcryptHasher(cfg.BcryptCost),
		Throttle:        deps.Throttle,
		Recorder:        deps.Recorder,
		Logger:          logger,
		VerificationTTL: cfg.EmailVerificationTTL,
		ResetTTL:        cfg.PasswordResetTTL,
	})
}

// OpenRepository returns the user store selected by STORE_DRIVER and a
// function releasing it.
func OpenRepository(ctx context.Context, cfg *Config, logger *slog.Logger) (auth.Repository, func(), error) {
	if cfg.StoreDriver == StoreDriverMemory {
		logger.Warn("using in-memory user store, data is lost on restart")
		return auth.NewMemoryRepository(), func() {}, nil
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{
		MaxConns:        cfg.PGMaxConns,
		MaxConnLifetime: cfg.PGConnLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	return auth.NewRepository(pool), pool.Close, nil
}

// MailConfig derives the link and validity settings of outgoing emails.
func MailConfig(cfg *Config) mail.Config {
	return mail.Config{
		PublicURL:         cfg.AppPublicURL,
		VerificationValid: humanDuration(cfg.EmailVerificationTTL),
		ResetValid:        humanDuration(cfg.PasswordResetTTL),
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	}
	return d.String()
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
