// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// SessionGuard turns a presented access token into the profile of a live
// account. Every rejection carries CodeUnauthenticated, whatever the cause.
type SessionGuard struct {
	accounts AccountRepository
	tokens   *TokenIssuer
	logger   *slog.Logger
}

// NewSessionGuard creates a new SessionGuard.
func NewSessionGuard(accounts AccountRepository, tokens *TokenIssuer, opts ...Option) (*SessionGuard, error) {
	if accounts == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	o := applyOptions(opts)
	return &SessionGuard{accounts: accounts, tokens: tokens, logger: o.logger}, nil
}

// Authenticate verifies token and resolves its account. Accounts deleted
// after issuance are rejected like any other bad token.
func (g *SessionGuard) Authenticate(ctx context.Context, token string) (*Profile, error) {
	if token == "" {
		RecordOperation(OpAuthenticate, StatusFailure)
		return nil, errUnauthenticated("missing token")
	}

	claims, err := g.tokens.VerifyAccess(token)
	if err != nil {
		RecordOperation(OpAuthenticate, StatusFailure)
		g.logger.DebugContext(ctx, "access token rejected", "reason", reasonOf(err))
		return nil, errUnauthenticated(reasonOf(err))
	}

	account, err := g.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			RecordOperation(OpAuthenticate, StatusFailure)
			return nil, errUnauthenticated("account no longer exists")
		}
		RecordOperation(OpAuthenticate, StatusError)
		return nil, oops.Code("AUTH_GUARD_FAILED").
			With("operation", "get account").
			With("account_id", claims.AccountID.String()).
			Wrap(err)
	}

	RecordOperation(OpAuthenticate, StatusSuccess)
	return account.Profile(), nil
}
