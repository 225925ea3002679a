// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package web

import (
	"net/http"
	"time"

	"github.com/codevault/codevault/internal/auth"
)

// Cookie names.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// refreshCookiePath limits the refresh cookie to the one endpoint that
// consumes it.
const refreshCookiePath = BasePath + "/refresh"

func (h *Handler) setSessionCookies(w http.ResponseWriter, tokens auth.TokenPair) {
	http.SetCookie(w, h.cookie(AccessTokenCookie, tokens.AccessToken, "/", h.cfg.AccessTTL))
	http.SetCookie(w, h.cookie(RefreshTokenCookie, tokens.RefreshToken, refreshCookiePath, h.cfg.RefreshTTL))
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for _, c := range []*http.Cookie{
		h.cookie(AccessTokenCookie, "", "/", 0),
		h.cookie(RefreshTokenCookie, "", refreshCookiePath, 0),
	} {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (h *Handler) cookie(name, value, path string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// cookieValue returns the named cookie's value, or "" when it is absent.
func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
