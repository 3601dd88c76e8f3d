package auth

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Role classifies a marketplace account.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

func (r Role) selfAssignable() bool {
	return r == RoleOwner || r == RoleProvider
}

// User is the stored account record. Hash fields hold SHA-256 digests or
// bcrypt hashes, never the secrets themselves. Token hash and expiry fields
// are set and cleared in pairs.
type User struct {
	ID              string
	Email           string
	Username        string
	PasswordHash    string
	FirstName       string
	LastName        string
	Role            Role
	Phone           *string
	AvatarURL       *string
	IsEmailVerified bool
	TermsAcceptedAt time.Time

	RefreshTokenHash           *string
	ResetPasswordTokenHash     *string
	ResetPasswordExpiresAt     *time.Time
	EmailVerificationTokenHash *string
	EmailVerificationExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicUser is the only shape in which a user leaves the service.
type PublicUser struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Role            Role      `json:"role"`
	Phone           *string   `json:"phone,omitempty"`
	AvatarURL       *string   `json:"avatarUrl,omitempty"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	TermsAcceptedAt time.Time `json:"termsAcceptedAt"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Public strips every secret from u.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		ID:              u.ID,
		Email:           u.Email,
		Username:        u.Username,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Role:            u.Role,
		Phone:           cloneString(u.Phone),
		AvatarURL:       cloneString(u.AvatarURL),
		IsEmailVerified: u.IsEmailVerified,
		TermsAcceptedAt: u.TermsAcceptedAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// DisplayName is used to greet the user in emails.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	return u.Username
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Phone = cloneString(u.Phone)
	c.AvatarURL = cloneString(u.AvatarURL)
	c.RefreshTokenHash = cloneString(u.RefreshTokenHash)
	c.ResetPasswordTokenHash = cloneString(u.ResetPasswordTokenHash)
	c.ResetPasswordExpiresAt = cloneTime(u.ResetPasswordExpiresAt)
	c.EmailVerificationTokenHash = cloneString(u.EmailVerificationTokenHash)
	c.EmailVerificationExpiresAt = cloneTime(u.EmailVerificationExpiresAt)
	return &c
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email         string
	Username      string
	Password      string
	FirstName     string
	LastName      string
	Role          Role
	TermsAccepted bool
	Phone         string
	AvatarURL     string
}

// TokenPair is returned by every operation that opens or extends a session.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User *PublicUser `json:"user"`
	TokenPair
}

// PendingKind selects which outstanding token a scan looks at.
type PendingKind int

const (
	PendingPasswordReset PendingKind = iota + 1
	PendingEmailVerification
)

func (k PendingKind) String() string {
	switch k {
	case PendingPasswordReset:
		return "password_reset"
	case PendingEmailVerification:
		return "email_verification"
	}
	return "unknown"
}

// NormalizeEmail folds an address to the form used for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(email)))
}

// NormalizeUsername applies NFKC so visually identical names collide.
// Case is preserved for display; uniqueness is case-insensitive in the store.
func NormalizeUsername(username string) string {
	return norm.NFKC.String(strings.TrimSpace(username))
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
