// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Account field constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 8
	MaxPasswordLength = 128
	MaxEmailLength    = 254
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Account is a registered identity with its credential.
type Account struct {
	ID           ulid.ULID
	Username     string
	Email        string
	PasswordHash string
	Reset        *PendingReset
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public view of an Account. It never carries credential
// material.
type Profile struct {
	ID        ulid.ULID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewAccount creates an Account with validated fields. The email is
// normalized before it is stored.
func NewAccount(username, email, passwordHash string, now time.Time) (*Account, error) {
	username = NormalizeUsername(username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now = now.UTC()
	return &Account{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Profile returns the public view of the account.
func (a *Account) Profile() *Profile {
	return &Profile{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// NormalizeUsername trims surrounding whitespace. Case is preserved for
// display; uniqueness is enforced case-insensitively by repositories.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// FoldUsername returns the key usernames are compared by. Stores that
// cannot compare case-insensitively index this value.
func FoldUsername(username string) string {
	return strings.ToLower(NormalizeUsername(username))
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsEmailIdentity reports whether a login identity names an email address
// rather than a username.
func IsEmailIdentity(identity string) bool {
	return strings.Contains(identity, "@")
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code(CodeInvalidUsername).Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code(CodeInvalidUsername).
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code(CodeInvalidUsername).
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code(CodeInvalidUsername).
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail requires a bare addr-spec such as "dev@example.com". Display
// names and angle brackets are rejected.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeInvalidEmail).Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(CodeInvalidEmail).
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return oops.Code(CodeInvalidEmail).Errorf("email address is not valid")
	}
	return nil
}

// ValidatePassword enforces the password length policy. Length is counted
// in characters, not bytes.
func ValidatePassword(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return oops.Code(CodeInvalidPassword).
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return oops.Code(CodeInvalidPassword).
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// AccountRepository manages account persistence. Username and email lookups
// are case-insensitive.
type AccountRepository interface {
	// Create stores a new account. Returns ErrDuplicate if the username or
	// email is already taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByUsername retrieves an account by username.
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// ExistsByUsernameOrEmail reports whether any account holds either value.
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)

	// GetByResetDigest retrieves the account whose pending reset has the given
	// digest and has not expired at now.
	GetByResetDigest(ctx context.Context, digest string, now time.Time) (*Account, error)

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// SetPendingReset records a reset request, replacing any earlier one.
	SetPendingReset(ctx context.Context, id ulid.ULID, reset PendingReset) error

	// ClearPendingReset removes the pending reset only while it still has
	// digest. A reset replaced by a newer request, or a missing account, is
	// left alone and is not an error.
	ClearPendingReset(ctx context.Context, id ulid.ULID, digest string) error

	// CompleteReset atomically replaces the password hash and clears the
	// pending reset, provided the digest still matches and has not expired at
	// now. Returns the account ID, or ErrNotFound when no reset matched.
	CompleteReset(ctx context.Context, digest, passwordHash string, now time.Time) (ulid.ULID, error)
}
