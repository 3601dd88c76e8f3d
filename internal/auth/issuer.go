package auth

import (
	"bytes"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// TokenClass distinguishes access tokens from refresh tokens. Each class is
// signed with its own secret.
type TokenClass string

const (
	AccessToken  TokenClass = "access"
	RefreshToken TokenClass = "refresh"
)

var errTokenRejected = errors.New("token rejected")

// Claims is the JWT payload for both token classes.
type Claims struct {
	jwt.RegisteredClaims
	Use TokenClass `json:"token_use"`
}

// IssuerConfig configures a TokenIssuer.
type IssuerConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Clock         func() time.Time
}

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	secrets map[TokenClass][]byte
	ttls    map[TokenClass]time.Duration
	issuer  string
	clock   func() time.Time
}

// NewTokenIssuer validates cfg and builds an issuer. The two secrets must be
// non-empty and distinct.
func NewTokenIssuer(cfg IssuerConfig) (*TokenIssuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, oops.Code("AUTH_ISSUER_CONFIG_INVALID").Errorf("access and refresh secrets are required")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, oops.Code("AUTH_ISSUER_CONFIG_INVALID").Errorf("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, oops.Code("AUTH_ISSUER_CONFIG_INVALID").
			With("access_ttl", cfg.AccessTTL).
			With("refresh_ttl", cfg.RefreshTTL).
			Errorf("token lifetimes must be positive")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		secrets: map[TokenClass][]byte{AccessToken: cfg.AccessSecret, RefreshToken: cfg.RefreshSecret},
		ttls:    map[TokenClass]time.Duration{AccessToken: cfg.AccessTTL, RefreshToken: cfg.RefreshTTL},
		issuer:  cfg.Issuer,
		clock:   clock,
	}, nil
}

// TTL returns the lifetime of tokens of the given class.
func (i *TokenIssuer) TTL(class TokenClass) time.Duration {
	return i.ttls[class]
}

// Issue signs a token of the given class for subject. Every token carries a
// random jti so two tokens issued in the same second still differ.
func (i *TokenIssuer) Issue(class TokenClass, subject string) (string, error) {
	secret, ok := i.secrets[class]
	if !ok {
		return "", oops.Code("AUTH_TOKEN_CLASS_UNKNOWN").With("class", class).Errorf("unknown token class")
	}
	now := i.clock()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttls[class])),
			ID:        uuid.NewString(),
		},
		Use: class,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").With("class", class).Wrap(err)
	}
	return signed, nil
}

// Verify checks signature, expiry, issuer and class, and returns the claims.
// Every failure is reported as the same opaque error.
func (i *TokenIssuer) Verify(class TokenClass, token string) (*Claims, error) {
	secret, ok := i.secrets[class]
	if !ok || token == "" {
		return nil, errTokenRejected
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.clock),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, errTokenRejected
	}
	if claims.Use != class || claims.Subject == "" {
		return nil, errTokenRejected
	}
	return claims, nil
}
