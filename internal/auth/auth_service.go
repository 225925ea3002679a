// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codevault/codevault/pkg/errutil"
)

// Session is the result of a successful registration, login or refresh.
type Session struct {
	Profile *Profile
	Tokens  TokenPair
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Service provides registration, login and token lifecycle operations.
type Service struct {
	accounts  AccountRepository
	hasher    PasswordHasher
	tokens    *TokenIssuer
	logger    *slog.Logger
	now       func() time.Time
	opts      serviceOptions
	dummyHash string
}

// dummyPasswordHash is used when an account doesn't exist to prevent timing
// attacks. It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// NewAuthService creates a new Service.
func NewAuthService(accounts AccountRepository, hasher PasswordHasher, tokens *TokenIssuer, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}

	o := applyOptions(opts)
	s := &Service{
		accounts:  accounts,
		hasher:    hasher,
		tokens:    tokens,
		logger:    o.logger,
		now:       o.now,
		opts:      o,
		dummyHash: dummyPasswordHash,
	}
	// Match the dummy's cost to the configured hasher when it can tell us.
	if d, ok := hasher.(interface{ DummyHash() string }); ok {
		s.dummyHash = d.DummyHash()
	}
	return s, nil
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	username := NormalizeUsername(in.Username)
	email := NormalizeEmail(in.Email)
	if err := ValidateUsername(username); err != nil {
		RecordOperation(OpRegister, StatusFailure)
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		RecordOperation(OpRegister, StatusFailure)
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		RecordOperation(OpRegister, StatusFailure)
		return nil, err
	}

	exists, err := s.accounts.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		RecordOperation(OpRegister, StatusError)
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check existing account").
			Wrap(err)
	}
	if exists {
		RecordOperation(OpRegister, StatusFailure)
		return nil, errConflict()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		RecordOperation(OpRegister, StatusError)
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account, err := NewAccount(username, email, hash, s.now())
	if err != nil {
		RecordOperation(OpRegister, StatusFailure)
		return nil, err
	}

	// The existence check above is advisory; the store's unique indexes
	// decide concurrent registrations.
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicate) {
			RecordOperation(OpRegister, StatusFailure)
			return nil, errConflict()
		}
		RecordOperation(OpRegister, StatusError)
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create account").
			Wrap(err)
	}

	tokens, err := s.tokens.IssuePair(account.ID, account.Email)
	if err != nil {
		RecordOperation(OpRegister, StatusError)
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "issue tokens").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.opts.notify(ctx, NotifyWelcome, welcomeMessage(account))
	RecordOperation(OpRegister, StatusSuccess)
	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID.String())

	return &Session{Profile: account.Profile(), Tokens: *tokens}, nil
}

// Login authenticates by email (when identity contains "@") or username.
// Unknown identities and wrong passwords fail identically, and both run a
// full password verification.
func (s *Service) Login(ctx context.Context, identity, password string) (*Session, error) {
	identity = strings.TrimSpace(identity)

	var account *Account
	var lookupErr error
	if IsEmailIdentity(identity) {
		account, lookupErr = s.accounts.GetByEmail(ctx, NormalizeEmail(identity))
	} else {
		account, lookupErr = s.accounts.GetByUsername(ctx, identity)
	}

	// Determine which hash to verify against (real or dummy for timing attack prevention)
	var targetHash string
	var accountExists bool

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			RecordOperation(OpLogin, StatusError)
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get account").
				Wrap(lookupErr)
		}
		targetHash = s.dummyHash
	} else {
		targetHash = account.PasswordHash
		accountExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if accountExists {
			// A corrupt stored hash must look like a wrong password to the caller.
			errutil.LogError(s.logger, "stored password hash could not be verified", oops.
				With("account_id", account.ID.String()).
				Wrap(verifyErr))
		}
		valid = false
	}

	if !accountExists || !valid {
		RecordOperation(OpLogin, StatusFailure)
		return nil, errInvalidCredentials()
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeHash(ctx, account, password)
	}

	tokens, err := s.tokens.IssuePair(account.ID, account.Email)
	if err != nil {
		RecordOperation(OpLogin, StatusError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue tokens").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.opts.notify(ctx, NotifyLogin, loginMessage(account, s.now()))
	RecordOperation(OpLogin, StatusSuccess)
	s.logger.InfoContext(ctx, "account signed in", "account_id", account.ID.String())

	return &Session{Profile: account.Profile(), Tokens: *tokens}, nil
}

// upgradeHash re-hashes a verified password with the current parameters.
// Login succeeds regardless of the outcome.
func (s *Service) upgradeHash(ctx context.Context, account *Account, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"account_id", account.ID.String(),
			"operation", "hash",
			"error", err.Error(),
		)
		return
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"account_id", account.ID.String(),
			"operation", "update_password",
			"error", err.Error(),
		)
		return
	}
	account.PasswordHash = newHash
}

// Logout always succeeds. Tokens are stateless, so the only effect is that
// the caller discards its credentials; a valid token is logged for audit.
func (s *Service) Logout(ctx context.Context, accessToken string) {
	if claims, err := s.tokens.VerifyAccess(accessToken); err == nil {
		s.logger.InfoContext(ctx, "account signed out", "account_id", claims.AccountID.String())
	}
	RecordOperation(OpLogout, StatusSuccess)
}

// GetProfile returns the public view of an account.
func (s *Service) GetProfile(ctx context.Context, id ulid.ULID) (*Profile, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			RecordOperation(OpProfile, StatusFailure)
			return nil, oops.Code(CodeNotFound).
				With("account_id", id.String()).
				Errorf("account not found")
		}
		RecordOperation(OpProfile, StatusError)
		return nil, oops.Code("AUTH_PROFILE_FAILED").
			With("operation", "get account").
			With("account_id", id.String()).
			Wrap(err)
	}
	RecordOperation(OpProfile, StatusSuccess)
	return account.Profile(), nil
}

// Refresh exchanges a valid refresh token for a new token pair. The account
// must still exist.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		RecordOperation(OpRefresh, StatusFailure)
		return nil, errUnauthenticated(reasonOf(err))
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			RecordOperation(OpRefresh, StatusFailure)
			return nil, errUnauthenticated("account no longer exists")
		}
		RecordOperation(OpRefresh, StatusError)
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get account").
			With("account_id", claims.AccountID.String()).
			Wrap(err)
	}

	tokens, err := s.tokens.IssuePair(account.ID, account.Email)
	if err != nil {
		RecordOperation(OpRefresh, StatusError)
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "issue tokens").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	RecordOperation(OpRefresh, StatusSuccess)
	return &Session{Profile: account.Profile(), Tokens: *tokens}, nil
}

func errConflict() error {
	return oops.Code(CodeConflict).Errorf("an account with this username or email already exists")
}

// reasonOf pulls the rejection reason recorded by TokenCodec.
func reasonOf(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if reason, ok := oopsErr.Context()["reason"].(string); ok {
			return reason
		}
	}
	return "invalid token"
}
