// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codevault/codevault/internal/auth"
	"github.com/codevault/codevault/internal/config"
	"github.com/codevault/codevault/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreFactory connects to the configured account database.
	// Default: openStore
	StoreFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (AccountStore, error)

	// MigratorFactory creates a schema migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// MailerFactory creates the outbound mailer.
	// Default: mail.New
	MailerFactory func(cfg config.MailConfig, logger *slog.Logger) (auth.Mailer, error)

	// WebServerFactory creates the API server.
	// Default: web.NewServer
	WebServerFactory func(addr string, handler http.Handler, logger *slog.Logger) Server

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// AccountDeps contains injectable dependencies for the account command.
type AccountDeps struct {
	// StoreFactory connects to the configured account database.
	// Default: openStore
	StoreFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (AccountStore, error)

	// PasswordReader prompts for a password.
	// Default: readPassword on the controlling terminal
	PasswordReader func(prompt string) (string, error)
}

// AccountStore is an open account database.
type AccountStore interface {
	Accounts() auth.AccountRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// AutoMigrator is the part of store.Migrator used at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// Migrator is the part of store.Migrator used by the migrate command.
type Migrator interface {
	AutoMigrator
	Steps(n int) error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
}

// Server interface wraps the methods used from web.Server.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Server
	Registry() *prometheus.Registry
	Metrics() *observability.Metrics
}
