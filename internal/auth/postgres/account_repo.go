// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

// Package postgres implements auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codevault/codevault/internal/auth"
)

// Pool is the subset of *pgxpool.Pool used by the repositories. pgxmock's
// PgxPoolIface satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool Pool
	now  func() time.Time
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool Pool) *AccountRepository {
	return &AccountRepository{pool: pool, now: time.Now}
}

const accountColumns = `id, username, email, password_hash, reset_token, reset_token_expires_at, created_at, updated_at`

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	var digest *string
	var expiresAt *time.Time
	if account.Reset != nil {
		digest = &account.Reset.Digest
		expiresAt = &account.Reset.ExpiresAt
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		account.ID.String(),
		account.Username,
		account.Email,
		account.PasswordHash,
		digest,
		expiresAt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_DUPLICATE").
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicate)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())
	return r.getOne(row, "id", id.String())
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`, email)
	return r.getOne(row, "email", email)
}

// GetByUsername retrieves an account by username (case-insensitive).
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(username) = LOWER($1)`, username)
	return r.getOne(row, "username", username)
}

// GetByResetDigest retrieves the account holding an unexpired reset with
// the given digest.
func (r *AccountRepository) GetByResetDigest(ctx context.Context, digest string, now time.Time) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE reset_token = $1 AND reset_token_expires_at > $2
	`, digest, now.UTC())
	return r.getOne(row, "lookup", "reset digest")
}

func (r *AccountRepository) getOne(row pgx.Row, key, value string) (*auth.Account, error) {
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With(key, value).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by "+key).
			With(key, value).
			Wrap(err)
	}
	return account, nil
}

// ExistsByUsernameOrEmail reports whether the username or email is taken.
func (r *AccountRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM accounts
			WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($2)
		)
	`, username, email).Scan(&exists)
	if err != nil {
		return false, oops.Code("ACCOUNT_EXISTS_FAILED").
			With("operation", "check account existence").
			Wrap(err)
	}
	return exists, nil
}

// UpdatePassword updates only the password hash for an account.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id.String(), passwordHash, r.now().UTC(),
	)
	return r.checkUpdate(result, err, "update password", id)
}

// SetPendingReset records a reset request, replacing any earlier one.
func (r *AccountRepository) SetPendingReset(ctx context.Context, id ulid.ULID, reset auth.PendingReset) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET reset_token = $2, reset_token_expires_at = $3, updated_at = $4
		WHERE id = $1
	`, id.String(), reset.Digest, reset.ExpiresAt, r.now().UTC())
	return r.checkUpdate(result, err, "set pending reset", id)
}

// ClearPendingReset removes the pending reset if it still has digest.
// Matching no row means a newer request replaced it.
func (r *AccountRepository) ClearPendingReset(ctx context.Context, id ulid.ULID, digest string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET reset_token = NULL, reset_token_expires_at = NULL, updated_at = $3
		WHERE id = $1 AND reset_token = $2
	`, id.String(), digest, r.now().UTC())
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "clear pending reset").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// CompleteReset swaps the password and clears the reset in one statement.
// Concurrent redemptions of the same token race on the row lock; the loser
// matches no row.
func (r *AccountRepository) CompleteReset(ctx context.Context, digest, passwordHash string, now time.Time) (ulid.ULID, error) {
	var idStr string
	err := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET password_hash = $2,
		    reset_token = NULL,
		    reset_token_expires_at = NULL,
		    updated_at = $3
		WHERE reset_token = $1 AND reset_token_expires_at > $3
		RETURNING id
	`, digest, passwordHash, now.UTC()).Scan(&idStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return ulid.ULID{}, oops.Code("ACCOUNT_NOT_FOUND").
			With("lookup", "reset digest").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return ulid.ULID{}, oops.Code("ACCOUNT_RESET_FAILED").
			With("operation", "complete reset").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return ulid.ULID{}, oops.Code("ACCOUNT_RESET_FAILED").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}
	return id, nil
}

func (r *AccountRepository) checkUpdate(result pgconn.CommandTag, err error, operation string, id ulid.ULID) error {
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr     string
		account   auth.Account
		digest    *string
		expiresAt *time.Time
	)
	if err := row.Scan(
		&idStr,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&digest,
		&expiresAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(err)
	}
	account.ID = id
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()

	if digest != nil && expiresAt != nil {
		account.Reset = &auth.PendingReset{Digest: *digest, ExpiresAt: expiresAt.UTC()}
	}
	return &account, nil
}
