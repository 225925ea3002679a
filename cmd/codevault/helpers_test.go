// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codevault/codevault/internal/auth"
	"github.com/codevault/codevault/internal/auth/authtest"
	"github.com/codevault/codevault/internal/config"
	"github.com/codevault/codevault/internal/observability"
)

// testConfig returns a valid configuration with cheap hashing.
func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{
			Addr:            "127.0.0.1:0",
			MetricsAddr:     "127.0.0.1:0",
			AllowedOrigins:  []string{"http://localhost:3000"},
			BodyLimit:       16 << 10,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: config.DatabaseConfig{
			Driver:        config.DriverMongo,
			URL:           "mongodb://localhost:27017",
			MongoDatabase: "codevault",
		},
		Auth: config.AuthConfig{
			AccessTokenSecret:  strings.Repeat("a", auth.MinTokenSecretLength),
			RefreshTokenSecret: strings.Repeat("r", auth.MinTokenSecretLength),
			AccessTokenTTL:     time.Hour,
			RefreshTokenTTL:    24 * time.Hour,
			ResetTokenTTL:      15 * time.Minute,
			Issuer:             "codevault",
			FrontendURL:        "http://localhost:3000",
			NotifyTimeout:      time.Second,
			Argon2:             config.Argon2Config{Time: 1, MemoryKiB: 64, Threads: 1},
		},
		Mail: config.MailConfig{Driver: "log", From: "no-reply@codevault.test"},
		Log:  config.LogConfig{Format: "text", Level: "error"},
	}
}

// fakeStore is an AccountStore over in-memory accounts.
type fakeStore struct {
	accounts *authtest.MemoryAccounts
	pingErr  error
	closed   atomic.Bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: authtest.NewMemoryAccounts()}
}

func (s *fakeStore) Accounts() auth.AccountRepository { return s.accounts }

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}

func (s *fakeStore) factory() func(context.Context, *config.Config, *slog.Logger) (AccountStore, error) {
	return func(context.Context, *config.Config, *slog.Logger) (AccountStore, error) {
		return s, nil
	}
}

// fakeMigrator records calls made by the migrate and serve commands.
type fakeMigrator struct {
	mu      sync.Mutex
	calls   []string
	upErr   error
	version uint
	dirty   bool
	applied []uint
	pending []uint
	closed  bool
}

func (m *fakeMigrator) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *fakeMigrator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *fakeMigrator) Up() error {
	m.record("up")
	return m.upErr
}

func (m *fakeMigrator) Down() error {
	m.record("down")
	return nil
}

func (m *fakeMigrator) Steps(n int) error {
	m.record("steps")
	if n != -1 {
		return errUnexpectedSteps
	}
	return nil
}

func (m *fakeMigrator) Version() (uint, bool, error) {
	m.record("version")
	return m.version, m.dirty, nil
}

func (m *fakeMigrator) Force(v int) error {
	m.record("force")
	m.version = uint(v) //nolint:gosec // test values are small
	return nil
}

func (m *fakeMigrator) PendingMigrations() ([]uint, error) { return m.pending, nil }

func (m *fakeMigrator) AppliedMigrations() ([]uint, error) { return m.applied, nil }

func (m *fakeMigrator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var errUnexpectedSteps = errors.New("unexpected step count")

// fakeServer is a Server whose lifecycle the test drives.
type fakeServer struct {
	startErr error
	errCh    chan error
	started  chan struct{}
	stopped  atomic.Bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{errCh: make(chan error, 1), started: make(chan struct{})}
}

func (s *fakeServer) Start() (<-chan error, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	close(s.started)
	return s.errCh, nil
}

func (s *fakeServer) Stop(context.Context) error {
	s.stopped.Store(true)
	return nil
}

func (s *fakeServer) Addr() string { return "127.0.0.1:8080" }

// fakeObservabilityServer adds a real registry to fakeServer.
type fakeObservabilityServer struct {
	*fakeServer
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	readiness observability.ReadinessChecker
}

func newFakeObservabilityServer() *fakeObservabilityServer {
	registry := prometheus.NewRegistry()
	return &fakeObservabilityServer{
		fakeServer: newFakeServer(),
		registry:   registry,
		metrics:    observability.NewMetrics(registry),
	}
}

func (s *fakeObservabilityServer) Registry() *prometheus.Registry { return s.registry }

func (s *fakeObservabilityServer) Metrics() *observability.Metrics { return s.metrics }

// waitStarted fails the test if the server was not started in time.
func waitStarted(t *testing.T, s *fakeServer) {
	t.Helper()
	select {
	case <-s.started:
	case <-time.After(5 * time.Second):
		t.Fatal("server was not started")
	}
}

// setTestEnv supplies the settings config.Load requires and isolates the
// test from config and dotenv files.
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CODEVAULT_DATABASE__URL", "postgres://codevault@localhost:5432/codevault")
	t.Setenv("CODEVAULT_AUTH__ACCESS_TOKEN_SECRET", strings.Repeat("a", auth.MinTokenSecretLength))
	t.Setenv("CODEVAULT_AUTH__REFRESH_TOKEN_SECRET", strings.Repeat("r", auth.MinTokenSecretLength))
	t.Setenv("CODEVAULT_AUTH__ARGON2__TIME", "1")
	t.Setenv("CODEVAULT_AUTH__ARGON2__MEMORY_KIB", "64")
	t.Setenv("CODEVAULT_AUTH__ARGON2__THREADS", "1")
	t.Setenv("CODEVAULT_LOG__LEVEL", "error")

	prevConfig, prevEnv := configFile, envFile
	configFile, envFile = "", ""
	t.Cleanup(func() { configFile, envFile = prevConfig, prevEnv })
}
