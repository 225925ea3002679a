// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package web

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/codevault/codevault/internal/observability"
)

// BasePath prefixes every account route.
const BasePath = "/api/v1/users"

// NewRouter builds the account API with its middleware chain: request
// logging, panic recovery, CORS, security headers and, when metrics is
// non-nil, per-route instrumentation.
func NewRouter(h *Handler, metrics *observability.Metrics) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Message: "method not allowed"})
	})

	api := r.PathPrefix(BasePath).Subrouter()
	api.HandleFunc("/register", h.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/login", h.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/logout", h.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/refresh", h.handleRefresh).Methods(http.MethodPost)
	api.Handle("/profile", h.requireSession(http.HandlerFunc(h.handleProfile))).Methods(http.MethodGet)
	api.HandleFunc("/forgot-password", h.handleForgotPassword).Methods(http.MethodPost)
	api.HandleFunc("/reset-password/{token}", h.handleValidateResetToken).Methods(http.MethodGet)
	api.HandleFunc("/reset-password/{token}", h.handleResetPassword).Methods(http.MethodPost)

	if metrics != nil {
		r.Use(instrument(metrics))
	}

	var handler http.Handler = r
	handler = handlers.CORS(
		handlers.AllowedOrigins(h.cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(handler)
	handler = securityHeaders(handler, h.cfg.CookieSecure)
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: h.logger}),
		handlers.PrintRecoveryStack(true),
	)(handler)
	return handlers.CustomLoggingHandler(io.Discard, handler, accessLog(h.logger))
}

// hstsValue is sent only when the API is served over TLS.
const hstsValue = "max-age=15552000; includeSubDomains"

// securityHeaders sets the browser hardening headers on every response,
// including 404s and CORS preflights.
func securityHeaders(next http.Handler, tls bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("X-Content-Type-Options", "nosniff")
		hdr.Set("X-Frame-Options", "DENY")
		hdr.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		hdr.Set("Referrer-Policy", "no-referrer")
		hdr.Set("X-XSS-Protection", "0")
		if tls {
			hdr.Set("Strict-Transport-Security", hstsValue)
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog writes one debug line per request through slog.
func accessLog(logger *slog.Logger) handlers.LogFormatter {
	return func(_ io.Writer, p handlers.LogFormatterParams) {
		logger.Debug("http request",
			"method", p.Request.Method,
			"path", p.URL.Path,
			"status", p.StatusCode,
			"size", p.Size,
			"duration_ms", time.Since(p.TimeStamp).Milliseconds(),
			"remote_addr", p.Request.RemoteAddr,
		)
	}
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("panic while serving request", "panic", fmt.Sprint(v...))
}

// instrument records request counts and latency labelled by route template,
// so path parameters such as reset tokens never become label values.
func instrument(m *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := "unknown"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
