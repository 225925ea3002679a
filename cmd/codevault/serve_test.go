// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codevault/codevault/internal/auth"
	"github.com/codevault/codevault/internal/auth/authtest"
	"github.com/codevault/codevault/internal/config"
	"github.com/codevault/codevault/internal/observability"
	"github.com/codevault/codevault/pkg/errutil"
)

type serveHarness struct {
	store    *fakeStore
	mailer   *authtest.RecordingMailer
	migrator *fakeMigrator
	web      *fakeServer
	obs      *fakeObservabilityServer
	handler  http.Handler
	deps     *ServeDeps
	out      *bytes.Buffer
	cmd      *cobra.Command
}

func newServeHarness() *serveHarness {
	h := &serveHarness{
		store:    newFakeStore(),
		mailer:   authtest.NewRecordingMailer(),
		migrator: &fakeMigrator{},
		web:      newFakeServer(),
		obs:      newFakeObservabilityServer(),
		out:      new(bytes.Buffer),
	}
	h.cmd = &cobra.Command{}
	h.cmd.SetOut(h.out)
	h.deps = &ServeDeps{
		StoreFactory: h.store.factory(),
		MigratorFactory: func(string) (AutoMigrator, error) {
			return h.migrator, nil
		},
		MailerFactory: func(config.MailConfig, *slog.Logger) (auth.Mailer, error) {
			return h.mailer, nil
		},
		WebServerFactory: func(_ string, handler http.Handler, _ *slog.Logger) Server {
			h.handler = handler
			return h.web
		},
		ObservabilityServerFactory: func(_ string, readiness observability.ReadinessChecker, _ *slog.Logger) ObservabilityServer {
			h.obs.readiness = readiness
			return h.obs
		},
	}
	return h
}

// run starts the serve command in the background and returns its result
// channel.
func (h *serveHarness) run(ctx context.Context, cfg *config.Config) <-chan error {
	done := make(chan error, 1)
	go func() { done <- runServeWithDeps(ctx, cfg, h.cmd, h.deps) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return")
		return nil
	}
}

func TestServe_ServesAPIAndShutsDown(t *testing.T) {
	h := newServeHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := h.run(ctx, testConfig())
	waitStarted(t, h.web)
	waitStarted(t, h.obs.fakeServer)

	body := strings.NewReader(`{"username":"ada","email":"ada@example.com","password":"secret123"}`)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/users/register", body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.NotEmpty(t, session["accessToken"])
	require.Len(t, h.store.accounts.All(), 1)

	require.NoError(t, h.obs.readiness(ctx))

	cancel()
	require.NoError(t, waitDone(t, done))

	assert.True(t, h.web.stopped.Load())
	assert.True(t, h.obs.stopped.Load())
	assert.True(t, h.store.closed.Load())
	assert.Contains(t, h.out.String(), "CodeVault account service started")
	assert.Empty(t, h.migrator.Calls(), "mongo deployments are never migrated")

	// The welcome email was flushed before shutdown completed.
	msg, ok := h.mailer.Last()
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", msg.To)
}

func TestServe_MetricsDisabled(t *testing.T) {
	h := newServeHarness()
	cfg := testConfig()
	cfg.HTTP.MetricsAddr = ""
	h.deps.ObservabilityServerFactory = func(string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
		t.Fatal("observability server must not be created")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())

	done := h.run(ctx, cfg)
	waitStarted(t, h.web)
	cancel()

	require.NoError(t, waitDone(t, done))
}

func TestServe_AutoMigrate(t *testing.T) {
	tests := []struct {
		name        string
		driver      string
		autoMigrate bool
		wantCalls   []string
	}{
		{name: "postgres with auto-migrate", driver: config.DriverPostgres, autoMigrate: true, wantCalls: []string{"up"}},
		{name: "postgres without auto-migrate", driver: config.DriverPostgres, autoMigrate: false},
		{name: "mongo ignores auto-migrate", driver: config.DriverMongo, autoMigrate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newServeHarness()
			cfg := testConfig()
			cfg.Database.Driver = tt.driver
			cfg.Database.AutoMigrate = tt.autoMigrate
			ctx, cancel := context.WithCancel(context.Background())

			done := h.run(ctx, cfg)
			waitStarted(t, h.web)
			cancel()
			require.NoError(t, waitDone(t, done))

			if tt.wantCalls == nil {
				assert.Empty(t, h.migrator.Calls())
				return
			}
			assert.Equal(t, tt.wantCalls, h.migrator.Calls())
			assert.True(t, h.migrator.closed)
		})
	}
}

func TestServe_AutoMigrateErrorStopsStartup(t *testing.T) {
	h := newServeHarness()
	h.migrator.upErr = errors.New("schema error")
	cfg := testConfig()
	cfg.Database.Driver = config.DriverPostgres
	cfg.Database.AutoMigrate = true

	err := runServeWithDeps(context.Background(), cfg, h.cmd, h.deps)

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	assert.Nil(t, h.handler, "the web server must not be built")
	assert.True(t, h.store.closed.Load())
}

func TestServe_StoreError(t *testing.T) {
	h := newServeHarness()
	h.deps.StoreFactory = func(context.Context, *config.Config, *slog.Logger) (AccountStore, error) {
		return nil, errors.New("connection refused")
	}

	err := runServeWithDeps(context.Background(), testConfig(), h.cmd, h.deps)

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
}

func TestServe_WebStartError(t *testing.T) {
	h := newServeHarness()
	h.web.startErr = errors.New("address in use")

	err := runServeWithDeps(context.Background(), testConfig(), h.cmd, h.deps)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.True(t, h.store.closed.Load())
}

func TestServe_ObservabilityStartErrorStopsWeb(t *testing.T) {
	h := newServeHarness()
	h.obs.startErr = errors.New("address in use")

	err := runServeWithDeps(context.Background(), testConfig(), h.cmd, h.deps)

	require.Error(t, err)
	assert.True(t, h.web.stopped.Load())
}

func TestServe_ServerErrorTriggersShutdown(t *testing.T) {
	h := newServeHarness()

	done := h.run(context.Background(), testConfig())
	waitStarted(t, h.web)
	h.web.errCh <- errors.New("listener closed")

	require.NoError(t, waitDone(t, done))
	assert.True(t, h.web.stopped.Load())
}

func TestServe_ReadinessReflectsStore(t *testing.T) {
	h := newServeHarness()
	h.store.pingErr = errors.New("primary unreachable")
	ctx, cancel := context.WithCancel(context.Background())

	done := h.run(ctx, testConfig())
	waitStarted(t, h.obs.fakeServer)
	assert.Error(t, h.obs.readiness(ctx))
	cancel()

	require.NoError(t, waitDone(t, done))
}

func TestMonitorServerErrors(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("error cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		errCh <- errors.New("boom")

		monitorServerErrors(ctx, cancel, errCh, "test", logger)

		assert.Error(t, ctx.Err())
	})

	t.Run("closed channel does not cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error)
		close(errCh)

		monitorServerErrors(ctx, cancel, errCh, "test", logger)

		assert.NoError(t, ctx.Err())
	})

	t.Run("context done returns", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		monitorServerErrors(ctx, cancel, make(chan error), "test", logger)
	})
}

func TestNewServices_RejectsBadConfig(t *testing.T) {
	cfg := testConfig().Auth
	cfg.RefreshTokenSecret = cfg.AccessTokenSecret

	_, err := newServices(cfg, authtest.NewMemoryAccounts(), authtest.NewRecordingMailer(), slog.New(slog.DiscardHandler))

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_TOKEN_CONFIG")
}
