// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/codevault/codevault/internal/auth"
	"github.com/codevault/codevault/internal/config"
	"github.com/codevault/codevault/internal/logging"
	"github.com/codevault/codevault/internal/mail"
	"github.com/codevault/codevault/internal/observability"
	"github.com/codevault/codevault/internal/store"
	"github.com/codevault/codevault/internal/web"
)

// cleanupTimeout bounds teardown of partially started components.
const cleanupTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account API server",
		Long: `Start the HTTP account API together with the metrics and health
server. The process shuts down gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().String("addr", ":8080", "API listen address")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().Bool("auto-migrate", false, "apply pending postgres migrations at startup")
	addDatabaseFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the API with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}

	// Set up default factories
	if deps.StoreFactory == nil {
		deps.StoreFactory = openStore
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if deps.MailerFactory == nil {
		deps.MailerFactory = func(cfg config.MailConfig, logger *slog.Logger) (auth.Mailer, error) {
			return mail.New(cfg.Driver, cfg.SMTP(), logger)
		}
	}
	if deps.WebServerFactory == nil {
		deps.WebServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) Server {
			return web.NewServer(addr, handler, logger)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readiness, logger)
		}
	}

	logger, err := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}

	logger.Info("starting account service",
		"addr", cfg.HTTP.Addr,
		"database_driver", cfg.Database.Driver,
		"mail_driver", cfg.Mail.Driver,
	)

	accountStore, err := deps.StoreFactory(ctx, cfg, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if closeErr := accountStore.Close(closeCtx); closeErr != nil {
			logger.Warn("error closing database", "error", closeErr)
		}
	}()

	logger.Info("connected to database", "driver", cfg.Database.Driver)

	if cfg.Database.Driver == config.DriverPostgres && cfg.Database.AutoMigrate {
		if err := runAutoMigration(deps.MigratorFactory, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	mailer, err := deps.MailerFactory(cfg.Mail, logger)
	if err != nil {
		return oops.With("operation", "create mailer").Wrap(err)
	}

	svc, err := newServices(cfg.Auth, accountStore.Accounts(), mailer, logger)
	if err != nil {
		return oops.With("operation", "build services").Wrap(err)
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.HTTP.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.HTTP.MetricsAddr, accountStore.Ping, logger)
		auth.RegisterMetrics(obsServer.Registry())
		metrics = obsServer.Metrics()
	}

	handler, err := web.NewHandler(svc.accounts, svc.resets, svc.guard, web.Config{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		CookieSecure:   cfg.HTTP.CookieSecure,
		BodyLimit:      cfg.HTTP.BodyLimit,
		AccessTTL:      svc.tokens.AccessTTL(),
		RefreshTTL:     svc.tokens.RefreshTTL(),
	}, logger)
	if err != nil {
		return oops.With("operation", "build web handler").Wrap(err)
	}

	webServer := deps.WebServerFactory(cfg.HTTP.Addr, web.NewRouter(handler, metrics), logger)
	webErrChan, err := webServer.Start()
	if err != nil {
		return oops.With("operation", "start web server").Wrap(err)
	}
	// Monitor web server errors in background - cancel context on error
	go monitorServerErrors(ctx, cancel, webErrChan, "web", logger)

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
			defer shutdownCancel()
			if stopErr := webServer.Stop(shutdownCtx); stopErr != nil {
				logger.Warn("failed to stop web server during cleanup", "error", stopErr)
			}
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("CodeVault account service started on " + webServer.Addr())
	logger.Info("account service ready", "addr", webServer.Addr())

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownTimeout := cfg.HTTP.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = cleanupTimeout
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()

	// Drain requests first so no new notifications are queued after Wait.
	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}
	svc.notifier.Wait()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// runAutoMigration applies pending migrations before the API starts.
func runAutoMigration(factory func(string) (AutoMigrator, error), databaseURL string, logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()

	logger.Info("applying database migrations")
	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	return nil
}

// monitorServerErrors cancels ctx when errCh delivers an error. It returns
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
		// Context cancelled, exit monitoring
	}
}
