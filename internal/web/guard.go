// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/codevault/codevault/internal/auth"
)

type profileKey struct{}

// WithProfile returns a copy of ctx carrying the authenticated profile.
func WithProfile(ctx context.Context, p *auth.Profile) context.Context {
	return context.WithValue(ctx, profileKey{}, p)
}

// ProfileFromContext returns the profile attached by the session guard.
func ProfileFromContext(ctx context.Context) (*auth.Profile, bool) {
	p, ok := ctx.Value(profileKey{}).(*auth.Profile)
	return p, ok && p != nil
}

// AccessToken extracts the presented access token. The accessToken cookie
// wins over an Authorization bearer header; an empty cookie counts as
// absent.
func AccessToken(r *http.Request) string {
	if token := cookieValue(r, AccessTokenCookie); token != "" {
		return token
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireSession rejects requests without a valid access token and attaches
// the caller's profile to the request context otherwise.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile, err := h.guard.Authenticate(r.Context(), AccessToken(r))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithProfile(r.Context(), profile)))
	})
}
