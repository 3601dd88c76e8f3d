package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/pawhub/pawhub/internal/platform/db"
	"github.com/pawhub/pawhub/internal/shared"
)

// pgxQuerier is satisfied by *pgxpool.Pool and pgxmock pools.
type pgxQuerier interface {
	db.TxBeginner
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Unique index names from the users migration.
const (
	emailUniqueIndex    = "users_email_lower_key"
	usernameUniqueIndex = "users_username_lower_key"
)

const userColumns = `id, email, username, password_hash, first_name, last_name, role,
	phone, avatar_url, is_email_verified, terms_accepted_at,
	refresh_token_hash, reset_password_token_hash, reset_password_expires_at,
	email_verification_token_hash, email_verification_expires_at,
	created_at, updated_at`

// PGRepository stores users in PostgreSQL.
type PGRepository struct {
	db    pgxQuerier
	clock func() time.Time
}

// NewRepository constructs a PGRepository over a pool.
func NewRepository(pool pgxQuerier) *PGRepository {
	return &PGRepository{db: pool, clock: time.Now}
}

// Ping checks that the database answers.
func (r *PGRepository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return oops.Code("USER_STORE_UNAVAILABLE").Wrap(err)
	}
	return nil
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, "find_by_id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, "find_by_email", `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.findOne(ctx, "find_by_username", `SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1)`, username)
}

func (r *PGRepository) findOne(ctx context.Context, op, query string, arg any) (*User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", op).Wrap(err)
	}
	return user, nil
}

func (r *PGRepository) FindPending(ctx context.Context, kind PendingKind, now time.Time) ([]*User, error) {
	var where string
	switch kind {
	case PendingPasswordReset:
		where = `reset_password_token_hash IS NOT NULL AND reset_password_expires_at > $1`
	case PendingEmailVerification:
		where = `is_email_verified = FALSE AND email_verification_token_hash IS NOT NULL AND email_verification_expires_at > $1`
	default:
		return nil, oops.Code("USER_PENDING_KIND_INVALID").With("kind", int(kind)).Errorf("unknown pending kind")
	}
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, now)
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "find_pending").With("kind", kind.String()).Wrap(err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("USER_SCAN_FAILED").With("kind", kind.String()).Wrap(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "find_pending").Wrap(err)
	}
	return users, nil
}

func (r *PGRepository) Create(ctx context.Context, user *User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		user.ID, user.Email, user.Username, user.PasswordHash, user.FirstName, user.LastName, string(user.Role),
		user.Phone, user.AvatarURL, user.IsEmailVerified, user.TermsAcceptedAt,
		user.RefreshTokenHash, user.ResetPasswordTokenHash, user.ResetPasswordExpiresAt,
		user.EmailVerificationTokenHash, user.EmailVerificationExpiresAt,
		user.CreatedAt, user.UpdatedAt,
	)
	if constraint, ok := shared.UniqueViolation(err); ok {
		switch constraint {
		case emailUniqueIndex:
			return ErrEmailTaken
		case usernameUniqueIndex:
			return ErrUsernameTaken
		}
		return oops.Code("USER_CONFLICT").With("constraint", constraint).Wrap(shared.ErrConflict)
	}
	if err != nil {
		return oops.Code("USER_INSERT_FAILED").With("user_id", user.ID).Wrap(err)
	}
	return nil
}

func (r *PGRepository) Update(ctx context.Context, id string, patch Patch) error {
	if patch.Empty() {
		return nil
	}
	query, args := buildUpdate(id, patch, r.clock())
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("user_id", id).With("columns", patch.Columns()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// buildUpdate renders
// UPDATE users SET <cols>, updated_at = $n WHERE id = $m [AND <guards>].
func buildUpdate(id string, patch Patch, now time.Time) (string, []any) {
	columns := patch.Columns()
	sets := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+2)
	for _, column := range columns {
		args = append(args, patch.Value(column))
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	args = append(args, now)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)
	where := []string{fmt.Sprintf("id = $%d", len(args))}
	for _, column := range patch.Expectations() {
		args = append(args, patch.Expected(column))
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	return "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND "), args
}

func (r *PGRepository) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	var cleared int64
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users
			SET reset_password_token_hash = NULL, reset_password_expires_at = NULL, updated_at = $1
			WHERE reset_password_expires_at <= $1`, now)
		if err != nil {
			return err
		}
		cleared += tag.RowsAffected()
		tag, err = tx.Exec(ctx, `UPDATE users
			SET email_verification_token_hash = NULL, email_verification_expires_at = NULL, updated_at = $1
			WHERE email_verification_expires_at <= $1`, now)
		if err != nil {
			return err
		}
		cleared += tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, oops.Code("USER_PURGE_FAILED").Wrap(err)
	}
	return cleared, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &role,
		&u.Phone, &u.AvatarURL, &u.IsEmailVerified, &u.TermsAcceptedAt,
		&u.RefreshTokenHash, &u.ResetPasswordTokenHash, &u.ResetPasswordExpiresAt,
		&u.EmailVerificationTokenHash, &u.EmailVerificationExpiresAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}
