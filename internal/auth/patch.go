package auth

import (
	"maps"
	"sort"
	"time"
)

// Column names shared by Patch and the PostgreSQL repository.
const (
	colPasswordHash               = "password_hash"
	colRefreshTokenHash           = "refresh_token_hash"
	colResetPasswordTokenHash     = "reset_password_token_hash"
	colResetPasswordExpiresAt     = "reset_password_expires_at"
	colEmailVerificationTokenHash = "email_verification_token_hash"
	colEmailVerificationExpiresAt = "email_verification_expires_at"
	colIsEmailVerified            = "is_email_verified"
)

// Patch is a field-level update of one user record. A nil value clears a
// nullable column. Expectations turn the update into a compare-and-swap: the
// update applies only when every expected column still holds the given value.
type Patch struct {
	set    map[string]any
	expect map[string]string
}

// NewPatch returns an empty Patch.
func NewPatch() Patch {
	return Patch{set: map[string]any{}, expect: map[string]string{}}
}

// with and expecting copy before writing so patches derived from a shared
// base stay independent.
func (p Patch) with(column string, value any) Patch {
	set := make(map[string]any, len(p.set)+1)
	maps.Copy(set, p.set)
	set[column] = value
	p.set = set
	return p
}

func (p Patch) expecting(column, value string) Patch {
	expect := make(map[string]string, len(p.expect)+1)
	maps.Copy(expect, p.expect)
	expect[column] = value
	p.expect = expect
	return p
}

// SetPasswordHash replaces the password hash.
func (p Patch) SetPasswordHash(hash string) Patch {
	return p.with(colPasswordHash, hash)
}

// SetRefreshTokenHash stores the digest of the current refresh token.
func (p Patch) SetRefreshTokenHash(digest string) Patch {
	return p.with(colRefreshTokenHash, digest)
}

// ClearRefreshTokenHash ends the current session.
func (p Patch) ClearRefreshTokenHash() Patch {
	return p.with(colRefreshTokenHash, nil)
}

// SetResetToken records an outstanding password reset.
func (p Patch) SetResetToken(digest string, expiresAt time.Time) Patch {
	return p.with(colResetPasswordTokenHash, digest).with(colResetPasswordExpiresAt, expiresAt)
}

// ClearResetToken removes the outstanding password reset.
func (p Patch) ClearResetToken() Patch {
	return p.with(colResetPasswordTokenHash, nil).with(colResetPasswordExpiresAt, nil)
}

// SetVerificationToken records an outstanding email verification.
func (p Patch) SetVerificationToken(digest string, expiresAt time.Time) Patch {
	return p.with(colEmailVerificationTokenHash, digest).with(colEmailVerificationExpiresAt, expiresAt)
}

// ClearVerificationToken removes the outstanding email verification.
func (p Patch) ClearVerificationToken() Patch {
	return p.with(colEmailVerificationTokenHash, nil).with(colEmailVerificationExpiresAt, nil)
}

// MarkEmailVerified flips the verified flag.
func (p Patch) MarkEmailVerified() Patch {
	return p.with(colIsEmailVerified, true)
}

// WhereRefreshTokenHash guards the update on the current refresh digest.
func (p Patch) WhereRefreshTokenHash(digest string) Patch {
	return p.expecting(colRefreshTokenHash, digest)
}

// WhereResetTokenHash guards the update on the outstanding reset digest.
func (p Patch) WhereResetTokenHash(digest string) Patch {
	return p.expecting(colResetPasswordTokenHash, digest)
}

// WhereVerificationTokenHash guards the update on the outstanding
// verification digest.
func (p Patch) WhereVerificationTokenHash(digest string) Patch {
	return p.expecting(colEmailVerificationTokenHash, digest)
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return len(p.set) == 0
}

// Columns returns the updated columns in a stable order.
func (p Patch) Columns() []string {
	return sortedKeys(p.set)
}

// Value returns the new value for column.
func (p Patch) Value(column string) any {
	return p.set[column]
}

// Expectations returns the guarded columns in a stable order.
func (p Patch) Expectations() []string {
	return sortedKeys(p.expect)
}

// Expected returns the value a guarded column must hold.
func (p Patch) Expected(column string) string {
	return p.expect[column]
}

// Matches reports whether u satisfies every expectation.
func (p Patch) Matches(u *User) bool {
	for column, want := range p.expect {
		got := stringField(u, column)
		if got == nil || *got != want {
			return false
		}
	}
	return true
}

// Apply writes the patch onto u and stamps UpdatedAt.
func (p Patch) Apply(u *User, now time.Time) {
	for column, value := range p.set {
		switch column {
		case colPasswordHash:
			u.PasswordHash, _ = value.(string)
		case colRefreshTokenHash:
			u.RefreshTokenHash = stringPtr(value)
		case colResetPasswordTokenHash:
			u.ResetPasswordTokenHash = stringPtr(value)
		case colResetPasswordExpiresAt:
			u.ResetPasswordExpiresAt = timePtr(value)
		case colEmailVerificationTokenHash:
			u.EmailVerificationTokenHash = stringPtr(value)
		case colEmailVerificationExpiresAt:
			u.EmailVerificationExpiresAt = timePtr(value)
		case colIsEmailVerified:
			u.IsEmailVerified, _ = value.(bool)
		}
	}
	u.UpdatedAt = now
}

func stringField(u *User, column string) *string {
	switch column {
	case colRefreshTokenHash:
		return u.RefreshTokenHash
	case colResetPasswordTokenHash:
		return u.ResetPasswordTokenHash
	case colEmailVerificationTokenHash:
		return u.EmailVerificationTokenHash
	}
	return nil
}

func stringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func timePtr(v any) *time.Time {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return &t
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
