// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package web_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/codevault/codevault/internal/auth"
	"github.com/codevault/codevault/internal/auth/authtest"
	"github.com/codevault/codevault/internal/observability"
	"github.com/codevault/codevault/internal/web"
)

var quiet = slog.New(slog.DiscardHandler)

const frontendURL = "https://vault.example.com"

type apiEnv struct {
	clock   *authtest.Clock
	store   *authtest.MemoryAccounts
	mailer  *authtest.RecordingMailer
	metrics *observability.Metrics
	router  http.Handler
}

type envOption func(*web.Config)

func withBodyLimit(n int64) envOption {
	return func(c *web.Config) { c.BodyLimit = n }
}

// withInsecureCookies lets a cookie jar replay cookies over plain HTTP.
func withInsecureCookies() envOption {
	return func(c *web.Config) { c.CookieSecure = false }
}

// newAPIEnv wires the real services over in-memory fakes. tb may be a
// *testing.T or GinkgoTB().
func newAPIEnv(tb testing.TB, opts ...envOption) *apiEnv {
	tb.Helper()
	clock := authtest.NewClock(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC))
	store := authtest.NewMemoryAccounts()
	mailer := authtest.NewRecordingMailer()
	hasher := authtest.NewHasher(tb)
	issuer := authtest.NewTokenIssuer(tb, clock.Now)

	accounts, err := auth.NewAuthService(store, hasher, issuer, auth.WithClock(clock.Now), auth.WithLogger(quiet))
	require.NoError(tb, err)
	resets, err := auth.NewPasswordResetService(store, hasher, mailer,
		auth.ResetConfig{FrontendURL: frontendURL}, auth.WithClock(clock.Now), auth.WithLogger(quiet))
	require.NoError(tb, err)
	guard, err := auth.NewSessionGuard(store, issuer, auth.WithLogger(quiet))
	require.NoError(tb, err)

	cfg := web.Config{
		AllowedOrigins: []string{"http://localhost:3000"},
		CookieSecure:   true,
		AccessTTL:      issuer.AccessTTL(),
		RefreshTTL:     issuer.RefreshTTL(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	handler, err := web.NewHandler(accounts, resets, guard, cfg, quiet)
	require.NoError(tb, err)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	return &apiEnv{
		clock:   clock,
		store:   store,
		mailer:  mailer,
		metrics: metrics,
		router:  web.NewRouter(handler, metrics),
	}
}

type requestOption func(*http.Request)

func withCookie(name, value string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (e *apiEnv) do(tb testing.TB, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	tb.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(tb, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, web.BasePath+path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// register creates ada and returns the registration response.
func (e *apiEnv) register(tb testing.TB) sessionBody {
	tb.Helper()
	rec := e.do(tb, http.MethodPost, "/register", map[string]string{
		"username": "ada",
		"email":    "ada@example.com",
		"password": "secret123",
	})
	require.Equal(tb, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[sessionBody](tb, rec)
}

var resetLink = regexp.MustCompile(`/reset-password/([0-9a-f]{64})`)

func (e *apiEnv) lastResetToken(tb testing.TB) string {
	tb.Helper()
	msg, ok := e.mailer.Last()
	require.True(tb, ok, "a reset email must have been sent")
	m := resetLink.FindStringSubmatch(msg.Text)
	require.Len(tb, m, 2)
	return m[1]
}

type sessionBody struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	User         map[string]any `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
}

type messageBody struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	User    map[string]any `json:"user"`
}

func decode[T any](tb testing.TB, rec *httptest.ResponseRecorder) T {
	tb.Helper()
	var v T
	require.NoError(tb, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
