package auth

import (
	"context"
	"time"
)

// Repository persists user records. Lookups that find nothing return
// shared.ErrNotFound. Create reports uniqueness violations as ErrEmailTaken
// or ErrUsernameTaken.
type Repository interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	// FindPending lists users holding an unexpired token of the given kind.
	// Verification candidates are further restricted to unverified users.
	FindPending(ctx context.Context, kind PendingKind, now time.Time) ([]*User, error)
	Create(ctx context.Context, user *User) error
	// Update applies patch to one user. When the patch carries expectations
	// that no longer hold, nothing is written and shared.ErrNotFound is
	// returned.
	Update(ctx context.Context, id string, patch Patch) error
	// ClearExpiredTokens drops reset and verification tokens whose expiry has
	// passed and returns the number of tokens cleared.
	ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// pendingFor reports whether u holds an unexpired token of kind at now.
func pendingFor(u *User, kind PendingKind, now time.Time) bool {
	switch kind {
	case PendingPasswordReset:
		return u.ResetPasswordTokenHash != nil && u.ResetPasswordExpiresAt != nil && u.ResetPasswordExpiresAt.After(now)
	case PendingEmailVerification:
		return !u.IsEmailVerified && u.EmailVerificationTokenHash != nil &&
			u.EmailVerificationExpiresAt != nil && u.EmailVerificationExpiresAt.After(now)
	}
	return false
}

func pendingDigest(u *User, kind PendingKind) *string {
	switch kind {
	case PendingPasswordReset:
		return u.ResetPasswordTokenHash
	case PendingEmailVerification:
		return u.EmailVerificationTokenHash
	}
	return nil
}
