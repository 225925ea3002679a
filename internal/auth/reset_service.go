// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/codevault/codevault/pkg/errutil"
)

// ResetConfig configures the password reset flow.
type ResetConfig struct {
	// FrontendURL is the base of the emailed link:
	// <FrontendURL>/reset-password/<token>.
	FrontendURL string
	// TokenTTL defaults to DefaultResetTokenTTL.
	TokenTTL time.Duration
}

// PasswordResetService handles password reset operations.
type PasswordResetService struct {
	accounts    AccountRepository
	hasher      PasswordHasher
	mailer      Mailer
	frontendURL string
	ttl         time.Duration
	logger      *slog.Logger
	opts        serviceOptions
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	accounts AccountRepository,
	hasher PasswordHasher,
	mailer Mailer,
	cfg ResetConfig,
	opts ...Option,
) (*PasswordResetService, error) {
	if accounts == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}
	base, err := url.Parse(cfg.FrontendURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, oops.Code("RESET_CONFIG").
			With("frontend_url", cfg.FrontendURL).
			Errorf("frontend URL must be an absolute URL")
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = DefaultResetTokenTTL
	}
	if ttl < 0 {
		return nil, oops.Code("RESET_CONFIG").Errorf("reset token ttl must be positive")
	}

	o := applyOptions(opts)
	return &PasswordResetService{
		accounts:    accounts,
		hasher:      hasher,
		mailer:      mailer,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		ttl:         ttl,
		logger:      o.logger,
		opts:        o,
	}, nil
}

// ForgotPassword emails a reset link to the account registered with email.
// Unknown emails succeed without side effects so that account existence is
// never revealed. When the email cannot be sent the pending reset is rolled
// back and a MAIL_UNAVAILABLE error is returned.
func (s *PasswordResetService) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		RecordOperation(OpForgotPassword, StatusFailure)
		return err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			RecordOperation(OpForgotPassword, StatusSuccess)
			s.logger.DebugContext(ctx, "password reset requested for unknown email")
			return nil
		}
		RecordOperation(OpForgotPassword, StatusError)
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}

	token, digest, err := GenerateResetToken()
	if err != nil {
		RecordOperation(OpForgotPassword, StatusError)
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	pending, err := NewPendingReset(digest, s.opts.now().Add(s.ttl))
	if err != nil {
		RecordOperation(OpForgotPassword, StatusError)
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "build pending reset").
			Wrap(err)
	}

	if err := s.accounts.SetPendingReset(ctx, account.ID, *pending); err != nil {
		RecordOperation(OpForgotPassword, StatusError)
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "persist pending reset").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	msgID, err := sendOrLog(ctx, s.logger, s.mailer, resetMessage(account, s.ResetURL(token), s.ttl))
	if err != nil {
		// The caller may have gone away; the rollback must still run.
		rollbackCtx := context.WithoutCancel(ctx)
		if rbErr := s.accounts.ClearPendingReset(rollbackCtx, account.ID, digest); rbErr != nil {
			errutil.LogError(s.logger, "failed to roll back pending password reset", oops.
				With("account_id", account.ID.String()).
				With("operation", "clear_pending_reset").
				Wrap(rbErr))
		}
		RecordOperation(OpForgotPassword, StatusError)
		return oops.Code(CodeMailUnavailable).
			With("account_id", account.ID.String()).
			Errorf("password reset email could not be sent")
	}

	RecordOperation(OpForgotPassword, StatusSuccess)
	s.logger.InfoContext(ctx, "password reset email sent",
		"account_id", account.ID.String(),
		"message_id", msgID,
	)
	return nil
}

// ResetURL builds the link emailed for token.
func (s *PasswordResetService) ResetURL(token string) string {
	return s.frontendURL + "/reset-password/" + url.PathEscape(token)
}

// ValidateToken reports whether token names an unexpired pending reset,
// without consuming it.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) error {
	if _, err := s.lookup(ctx, OpValidateReset, token); err != nil {
		return err
	}
	RecordOperation(OpValidateReset, StatusSuccess)
	return nil
}

// ResetPassword replaces the password of the account holding token. The
// password change and the reset clearing happen in one store operation, so
// a token works exactly once.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		RecordOperation(OpResetPassword, StatusFailure)
		return err
	}

	account, err := s.lookup(ctx, OpResetPassword, token)
	if err != nil {
		return err // Already has appropriate error code
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		RecordOperation(OpResetPassword, StatusError)
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	now := s.opts.now()
	accountID, err := s.accounts.CompleteReset(ctx, ResetTokenDigest(strings.TrimSpace(token)), hash, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Consumed or expired between lookup and update.
			RecordOperation(OpResetPassword, StatusFailure)
			return errResetTokenInvalid()
		}
		RecordOperation(OpResetPassword, StatusError)
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "complete reset").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.opts.notify(ctx, NotifyPasswordChanged, passwordChangedMessage(account, now))
	RecordOperation(OpResetPassword, StatusSuccess)
	s.logger.InfoContext(ctx, "password reset completed", "account_id", accountID.String())
	return nil
}

// lookup resolves token and records rejections under op.
func (s *PasswordResetService) lookup(ctx context.Context, op, token string) (*Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		RecordOperation(op, StatusFailure)
		return nil, errResetTokenInvalid()
	}

	account, err := s.accounts.GetByResetDigest(ctx, ResetTokenDigest(token), s.opts.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			RecordOperation(op, StatusFailure)
			return nil, errResetTokenInvalid()
		}
		RecordOperation(op, StatusError)
		return nil, oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "get account by reset digest").
			Wrap(err)
	}
	return account, nil
}
