package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pawhub/pawhub/internal/shared"
)

// MemoryRepository keeps users in process memory. Records are copied on the
// way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
	clock func() time.Time
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*User), clock: time.Now}
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user.Clone(), nil
}

func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	return r.findBy(func(u *User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *MemoryRepository) FindByUsername(_ context.Context, username string) (*User, error) {
	return r.findBy(func(u *User) bool { return strings.EqualFold(u.Username, username) })
}

func (r *MemoryRepository) findBy(match func(*User) bool) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if match(user) {
			return user.Clone(), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *MemoryRepository) FindPending(_ context.Context, kind PendingKind, now time.Time) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*User
	for _, user := range r.users {
		if pendingFor(user, kind, now) {
			out = append(out, user.Clone())
		}
	}
	return out, nil
}

func (r *MemoryRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrEmailTaken
		}
		if strings.EqualFold(existing.Username, user.Username) {
			return ErrUsernameTaken
		}
	}
	if _, ok := r.users[user.ID]; ok {
		return shared.ErrConflict
	}
	r.users[user.ID] = user.Clone()
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, id string, patch Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || !patch.Matches(user) {
		return shared.ErrNotFound
	}
	patch.Apply(user, r.clock())
	return nil
}

func (r *MemoryRepository) ClearExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cleared int64
	for _, user := range r.users {
		if user.ResetPasswordExpiresAt != nil && !user.ResetPasswordExpiresAt.After(now) {
			NewPatch().ClearResetToken().Apply(user, now)
			cleared++
		}
		if user.EmailVerificationExpiresAt != nil && !user.EmailVerificationExpiresAt.After(now) {
			NewPatch().ClearVerificationToken().Apply(user, now)
			cleared++
		}
	}
	return cleared, nil
}
