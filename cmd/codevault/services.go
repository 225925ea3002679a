// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package main

import (
	"log/slog"

	"github.com/codevault/codevault/internal/auth"
	"github.com/codevault/codevault/internal/config"
)

// services are the account operations built from one configuration.
type services struct {
	tokens   *auth.TokenIssuer
	accounts *auth.Service
	resets   *auth.PasswordResetService
	guard    *auth.SessionGuard
	notifier *auth.Notifier
}

func newTokenIssuer(cfg config.AuthConfig) (*auth.TokenIssuer, error) {
	access, err := auth.NewTokenCodec(auth.AccessToken, []byte(cfg.AccessTokenSecret), cfg.AccessTokenTTL,
		auth.WithIssuer(cfg.Issuer))
	if err != nil {
		return nil, err
	}
	refresh, err := auth.NewTokenCodec(auth.RefreshToken, []byte(cfg.RefreshTokenSecret), cfg.RefreshTokenTTL,
		auth.WithIssuer(cfg.Issuer))
	if err != nil {
		return nil, err
	}
	return auth.NewTokenIssuer(access, refresh)
}

// newServices wires the auth services over accounts. Welcome, login and
// password-changed emails go through a background notifier; reset links
// are sent synchronously through the same mailer.
func newServices(cfg config.AuthConfig, accounts auth.AccountRepository, mailer auth.Mailer, logger *slog.Logger) (*services, error) {
	hasher, err := auth.NewArgon2idHasher(cfg.Argon2Params())
	if err != nil {
		return nil, err
	}
	tokens, err := newTokenIssuer(cfg)
	if err != nil {
		return nil, err
	}
	notifier, err := auth.NewNotifier(mailer, logger, cfg.NotifyTimeout)
	if err != nil {
		return nil, err
	}
	opts := []auth.Option{auth.WithLogger(logger), auth.WithNotifier(notifier)}

	accountService, err := auth.NewAuthService(accounts, hasher, tokens, opts...)
	if err != nil {
		return nil, err
	}
	resets, err := auth.NewPasswordResetService(accounts, hasher, mailer, auth.ResetConfig{
		FrontendURL: cfg.FrontendURL,
		TokenTTL:    cfg.ResetTokenTTL,
	}, opts...)
	if err != nil {
		return nil, err
	}
	guard, err := auth.NewSessionGuard(accounts, tokens, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &services{
		tokens:   tokens,
		accounts: accountService,
		resets:   resets,
		guard:    guard,
		notifier: notifier,
	}, nil
}
