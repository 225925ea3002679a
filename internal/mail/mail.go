// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

// Package mail provides auth.Mailer implementations.
package mail

import (
	"log/slog"

	"github.com/samber/oops"

	"github.com/codevault/codevault/internal/auth"
)

// Mailer drivers.
const (
	DriverSMTP = "smtp"
	DriverLog  = "log"
)

// New returns the mailer for driver.
func New(driver string, cfg SMTPConfig, logger *slog.Logger) (auth.Mailer, error) {
	switch driver {
	case DriverSMTP:
		return NewSMTPMailer(cfg)
	case DriverLog:
		return NewLogMailer(cfg.From, logger), nil
	default:
		return nil, oops.Code("MAIL_CONFIG").
			With("driver", driver).
			Errorf("unknown mail driver %q", driver)
	}
}
