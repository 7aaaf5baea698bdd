// Package postgres adapts a PostgreSQL accounts table to the AccountStore
// contract using pgx. Schema ownership stays with the host application; the
// adapter only assumes the columns it reads and writes.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	logauth "github.com/origbo/logware-auth"
)

const uniqueViolation = "23505"

const accountColumns = `id, email, password_hash, role, active,
	two_factor_enabled, two_factor_secret, password_changed_at,
	reset_token_hash, reset_expires_at, last_login_at, created_at`

// Store is the pgx-backed AccountStore.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FindByEmail looks an account up by its lower-cased email. Deactivated
// accounts are returned; the engine applies the active-only rule itself.
func (s *Store) FindByEmail(ctx context.Context, email string) (*logauth.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// FindByID looks an account up by ID.
func (s *Store) FindByID(ctx context.Context, id string) (*logauth.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// FindByResetTokenHash looks an account up by its stored reset digest.
func (s *Store) FindByResetTokenHash(ctx context.Context, hash []byte) (*logauth.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE reset_token_hash = $1`, hash)
	return scanAccount(row)
}

// Create inserts the account. A unique violation on email maps to
// logauth.ErrDuplicateEmail.
func (s *Store) Create(ctx context.Context, account *logauth.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (
			id, email, password_hash, role, active,
			two_factor_enabled, two_factor_secret, password_changed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		account.ID, account.Email, account.PasswordHash, string(account.Role),
		account.Active, account.TwoFactorEnabled, account.TwoFactorSecret,
		account.PasswordChangedAt, account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return logauth.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// UpdatePassword replaces the hash and bumps the change timestamp.
func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return s.exec(ctx,
		`UPDATE accounts SET password_hash = $2, password_changed_at = $3 WHERE id = $1`,
		id, passwordHash, changedAt)
}

// UpdateTwoFactor sets the enablement flag and secret together.
func (s *Store) UpdateTwoFactor(ctx context.Context, id string, enabled bool, secret string) error {
	return s.exec(ctx,
		`UPDATE accounts SET two_factor_enabled = $2, two_factor_secret = $3 WHERE id = $1`,
		id, enabled, secret)
}

// SetResetToken stores the reset digest and expiry.
func (s *Store) SetResetToken(ctx context.Context, id string, hash []byte, expiresAt time.Time) error {
	return s.exec(ctx,
		`UPDATE accounts SET reset_token_hash = $2, reset_expires_at = $3 WHERE id = $1`,
		id, hash, expiresAt)
}

// ClearResetToken removes the reset state while the stored digest still
// equals hash. Zero rows affected means the token was already consumed or
// replaced and reports ErrAccountNotFound.
func (s *Store) ClearResetToken(ctx context.Context, id string, hash []byte) error {
	return s.exec(ctx,
		`UPDATE accounts SET reset_token_hash = NULL, reset_expires_at = NULL
		 WHERE id = $1 AND reset_token_hash = $2`,
		id, hash)
}

// TouchLastLogin records a successful login time.
func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx,
		`UPDATE accounts SET last_login_at = $2 WHERE id = $1`, id, at)
}

// SetActive flips the logical-delete flag.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.exec(ctx,
		`UPDATE accounts SET active = $2 WHERE id = $1`, id, active)
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return logauth.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*logauth.Account, error) {
	var (
		account      logauth.Account
		role         string
		secret       *string
		resetHash    []byte
		resetExpires *time.Time
		lastLogin    *time.Time
	)

	err := row.Scan(
		&account.ID, &account.Email, &account.PasswordHash, &role,
		&account.Active, &account.TwoFactorEnabled, &secret,
		&account.PasswordChangedAt, &resetHash, &resetExpires,
		&lastLogin, &account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, logauth.ErrAccountNotFound
		}
		return nil, err
	}

	account.Role = logauth.Role(role)
	if secret != nil {
		account.TwoFactorSecret = *secret
	}
	account.ResetTokenHash = resetHash
	if resetExpires != nil {
		account.ResetExpiresAt = *resetExpires
	}
	if lastLogin != nil {
		account.LastLoginAt = *lastLogin
	}

	return &account, nil
}
