// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codevault/codevault/internal/auth"
)

// AccountService is the account lifecycle the API exposes.
type AccountService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, identity, password string) (*auth.Session, error)
	Logout(ctx context.Context, accessToken string)
	GetProfile(ctx context.Context, id ulid.ULID) (*auth.Profile, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Session, error)
}

// ResetService is the self-service password recovery flow.
type ResetService interface {
	ForgotPassword(ctx context.Context, email string) error
	ValidateToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Authenticator resolves an access token to a profile.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Profile, error)
}

// Config controls cookies, CORS and request limits.
type Config struct {
	AllowedOrigins []string
	CookieSecure   bool
	BodyLimit      int64
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
}

// Handler serves the account API.
type Handler struct {
	accounts AccountService
	resets   ResetService
	guard    Authenticator
	cfg      Config
	logger   *slog.Logger
}

// NewHandler creates a Handler. Zero limits and lifetimes in cfg fall back
// to the package and auth defaults.
func NewHandler(accounts AccountService, resets ResetService, guard Authenticator, cfg Config, logger *slog.Logger) (*Handler, error) {
	if accounts == nil {
		return nil, oops.Errorf("account service is required")
	}
	if resets == nil {
		return nil, oops.Errorf("password reset service is required")
	}
	if guard == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = auth.DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = auth.DefaultRefreshTokenTTL
	}

	return &Handler{
		accounts: accounts,
		resets:   resets,
		guard:    guard,
		cfg:      cfg,
		logger:   logger.With("component", "web"),
	}, nil
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type profileResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	User    *auth.Profile `json:"user"`
}

type sessionResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	User    *auth.Profile `json:"user"`
	auth.TokenPair
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest accepts the identity under any of its three names.
type loginRequest struct {
	Identity string `json:"identity"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (req loginRequest) identity() string {
	for _, v := range []string{req.Identity, req.Email, req.Username} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
	Password    string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	session, err := h.accounts.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.writeSession(w, http.StatusCreated, "User registered successfully", session)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	identity := req.identity()
	if identity == "" || req.Password == "" {
		writeError(w, r, h.logger, errBadRequest("email or username and password are required"))
		return
	}

	session, err := h.accounts.Login(r.Context(), identity, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.writeSession(w, http.StatusOK, "Login successful", session)
}

// handleLogout always succeeds; a missing or invalid token still clears
// the cookies.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.accounts.Logout(r.Context(), AccessToken(r))
	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out successfully"})
}

// handleRefresh takes the refresh token from the body when one is sent and
// from the refreshToken cookie otherwise.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, h.logger, err)
		return
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		token = cookieValue(r, RefreshTokenCookie)
	}

	session, err := h.accounts.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.writeSession(w, http.StatusOK, "Token refreshed successfully", session)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := ProfileFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, oops.Code(auth.CodeUnauthenticated).Errorf("authentication required"))
		return
	}

	profile, err := h.accounts.GetProfile(r.Context(), caller.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		Success: true,
		Message: "Profile fetched successfully",
		User:    profile,
	})
}

// handleForgotPassword answers identically whether or not the email
// belongs to an account.
func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.resets.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: "If an account exists for that email, a password reset link has been sent",
	})
}

func (h *Handler) handleValidateResetToken(w http.ResponseWriter, r *http.Request) {
	if err := h.resets.ValidateToken(r.Context(), mux.Vars(r)["token"]); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Password reset token is valid"})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	password := req.NewPassword
	if password == "" {
		password = req.Password
	}

	if err := h.resets.ResetPassword(r.Context(), mux.Vars(r)["token"], password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Password reset successful"})
}

func (h *Handler) writeSession(w http.ResponseWriter, status int, message string, session *auth.Session) {
	h.setSessionCookies(w, session.Tokens)
	writeJSON(w, status, sessionResponse{
		Success:   true,
		Message:   message,
		User:      session.Profile,
		TokenPair: session.Tokens,
	})
}
