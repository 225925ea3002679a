// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codevault/codevault/internal/auth"
	"github.com/codevault/codevault/internal/auth/authtest"
	authpg "github.com/codevault/codevault/internal/auth/postgres"
	"github.com/codevault/codevault/internal/store"
	"github.com/codevault/codevault/internal/web"
)

var resetLink = regexp.MustCompile(`/reset-password/([0-9a-f]{64})`)

// testEnv holds the resources shared by the account API specs.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	mailer    *authtest.RecordingMailer
	server    *httptest.Server
}

// setupTestEnv starts PostgreSQL, applies migrations and serves the API
// over the real repository.
func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	env := &testEnv{ctx: ctx, cancel: cancel, mailer: authtest.NewRecordingMailer()}

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("codevault_test"),
		postgres.WithUsername("codevault"),
		postgres.WithPassword("codevault"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	env.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		env.cleanup()
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		env.cleanup()
		return nil, err
	}
	_ = migrator.Close()

	logger := slog.New(slog.DiscardHandler)
	env.pool, err = store.ConnectPostgres(ctx, connStr, store.RetryPolicy{Retries: 1}, logger)
	if err != nil {
		env.cleanup()
		return nil, err
	}

	accounts := authpg.NewAccountRepository(env.pool)
	hasher := authtest.NewHasher(GinkgoTB())
	issuer := authtest.NewTokenIssuer(GinkgoTB(), time.Now)

	authService, err := auth.NewAuthService(accounts, hasher, issuer, auth.WithLogger(logger))
	if err != nil {
		env.cleanup()
		return nil, err
	}
	resets, err := auth.NewPasswordResetService(accounts, hasher, env.mailer,
		auth.ResetConfig{FrontendURL: "https://vault.example.com"}, auth.WithLogger(logger))
	if err != nil {
		env.cleanup()
		return nil, err
	}
	guard, err := auth.NewSessionGuard(accounts, issuer, auth.WithLogger(logger))
	if err != nil {
		env.cleanup()
		return nil, err
	}

	handler, err := web.NewHandler(authService, resets, guard, web.Config{
		AccessTTL:  issuer.AccessTTL(),
		RefreshTTL: issuer.RefreshTTL(),
	}, logger)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	env.server = httptest.NewServer(web.NewRouter(handler, nil))

	return env, nil
}

func (e *testEnv) cleanup() {
	if e.server != nil {
		e.server.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(context.Background())
	}
	e.cancel()
}

// newClient returns a client that keeps cookies between requests.
func (e *testEnv) newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &http.Client{Jar: jar}
}

func (e *testEnv) call(client *http.Client, method, path string, body any) (int, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req, err := http.NewRequestWithContext(e.ctx, method, e.server.URL+web.BasePath+path, &buf)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
	return resp.StatusCode, decoded
}

var _ = Describe("Account API on PostgreSQL", Ordered, func() {
	var env *testEnv

	BeforeAll(func() {
		var err error
		env, err = setupTestEnv()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(env.cleanup)
	})

	It("registers and signs in with either identity", func() {
		client := env.newClient()

		status, body := env.call(client, http.MethodPost, "/register", map[string]string{
			"username": "Ada", "email": "Ada@Example.com", "password": "secret123",
		})
		Expect(status).To(Equal(http.StatusCreated))
		Expect(body["user"]).To(HaveKeyWithValue("username", "Ada"))
		Expect(body["user"]).NotTo(HaveKey("password"))

		for _, identity := range []string{"ada", "ADA@example.com"} {
			status, body = env.call(env.newClient(), http.MethodPost, "/login", map[string]string{
				"identity": identity, "password": "secret123",
			})
			Expect(status).To(Equal(http.StatusOK), "login as %s", identity)
			Expect(body).To(HaveKey("accessToken"))
		}

		status, body = env.call(client, http.MethodGet, "/profile", nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["user"]).To(HaveKeyWithValue("email", "ada@example.com"))
	})

	It("rejects a duplicate username regardless of case", func() {
		status, _ := env.call(env.newClient(), http.MethodPost, "/register", map[string]string{
			"username": "ADA", "email": "other@example.com", "password": "secret123",
		})
		Expect(status).To(Equal(http.StatusConflict))
	})

	It("resets the password exactly once", func() {
		client := env.newClient()

		status, _ := env.call(client, http.MethodPost, "/forgot-password", map[string]string{"email": "ada@example.com"})
		Expect(status).To(Equal(http.StatusOK))

		msg, ok := env.mailer.Last()
		Expect(ok).To(BeTrue())
		match := resetLink.FindStringSubmatch(msg.Text)
		Expect(match).To(HaveLen(2))
		token := match[1]

		status, _ = env.call(client, http.MethodGet, "/reset-password/"+token, nil)
		Expect(status).To(Equal(http.StatusOK))

		status, _ = env.call(client, http.MethodPost, "/reset-password/"+token, map[string]string{"newPassword": "better456"})
		Expect(status).To(Equal(http.StatusOK))

		status, _ = env.call(client, http.MethodPost, "/reset-password/"+token, map[string]string{"newPassword": "again789"})
		Expect(status).To(Equal(http.StatusBadRequest))

		status, _ = env.call(client, http.MethodPost, "/login", map[string]string{"identity": "ada", "password": "secret123"})
		Expect(status).To(Equal(http.StatusUnauthorized))
		status, _ = env.call(client, http.MethodPost, "/login", map[string]string{"identity": "ada", "password": "better456"})
		Expect(status).To(Equal(http.StatusOK))
	})
})
