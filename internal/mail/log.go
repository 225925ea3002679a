// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/codevault/codevault/internal/auth"
)

// LogMailer writes messages to the log instead of delivering them. It is
// meant for local development; bodies are logged at debug level only.
type LogMailer struct {
	from   string
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(from string, logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{from: from, logger: logger.With("component", "mail")}
}

// Send logs msg and returns a generated message ID.
func (m *LogMailer) Send(ctx context.Context, msg auth.Message) (string, error) {
	id := ulid.Make().String()
	m.logger.InfoContext(ctx, "email captured by log mailer",
		"message_id", id,
		"from", m.from,
		"subject", msg.Subject)
	m.logger.DebugContext(ctx, "email body",
		"message_id", id,
		"to", msg.To,
		"text", msg.Text)
	return id, nil
}
