// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package auth

import (
	"bytes"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenKind distinguishes access tokens from refresh tokens. The kind is
// embedded in every token so one can never stand in for the other.
type TokenKind string

// Token kinds.
const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// Token defaults.
const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	MinTokenSecretLength   = 32
)

// Claims are the verified contents of a bearer token.
type Claims struct {
	ID        string
	AccountID ulid.ULID
	Email     string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string    `json:"email,omitempty"`
	Use   TokenKind `json:"use"`
}

// TokenCodec issues and verifies HS256-signed tokens of a single kind.
type TokenCodec struct {
	kind   TokenKind
	secret []byte
	ttl    time.Duration
	leeway time.Duration
	issuer string
	now    func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithTokenClock sets the time source used for issuing and verifying.
func WithTokenClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// WithLeeway tolerates clock skew when checking expiry.
func WithLeeway(d time.Duration) CodecOption {
	return func(c *TokenCodec) { c.leeway = d }
}

// WithIssuer stamps and requires the iss claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) { c.issuer = issuer }
}

// NewTokenCodec creates a codec for kind, signing with secret. Tokens expire
// ttl after issuance.
func NewTokenCodec(kind TokenKind, secret []byte, ttl time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	if kind != AccessToken && kind != RefreshToken {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").With("kind", kind).Errorf("unknown token kind")
	}
	if len(secret) < MinTokenSecretLength {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").
			With("kind", kind).
			With("min", MinTokenSecretLength).
			Errorf("%s token secret must be at least %d bytes", kind, MinTokenSecretLength)
	}
	if ttl <= 0 {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").With("kind", kind).Errorf("%s token ttl must be positive", kind)
	}

	c := &TokenCodec{
		kind:   kind,
		secret: bytes.Clone(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.leeway < 0 {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").With("kind", kind).Errorf("leeway cannot be negative")
	}
	return c, nil
}

// Kind returns the token kind this codec handles.
func (c *TokenCodec) Kind() TokenKind {
	return c.kind
}

// TTL returns the token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a new token for the account.
func (c *TokenCodec) Issue(accountID ulid.ULID, email string) (string, *Claims, error) {
	now := c.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Email: email,
		Use:   c.kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, oops.Code("AUTH_TOKEN_SIGN_FAILED").With("kind", c.kind).Wrap(err)
	}

	return signed, &Claims{
		ID:        claims.ID,
		AccountID: accountID,
		Email:     email,
		Kind:      c.kind,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify checks the signature, expiry and kind of token. Every failure wraps
// ErrTokenInvalid with code AUTH_TOKEN_INVALID.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, c.invalid("empty", nil)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var claims tokenClaims
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, c.invalid(failureReason(err), err)
	}

	if claims.Use != c.kind {
		return nil, c.invalid("wrong kind", nil)
	}

	accountID, err := ulid.ParseStrict(claims.Subject)
	if err != nil {
		return nil, c.invalid("malformed subject", err)
	}

	return &Claims{
		ID:        claims.ID,
		AccountID: accountID,
		Email:     claims.Email,
		Kind:      claims.Use,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (c *TokenCodec) invalid(reason string, cause error) error {
	b := oops.Code(CodeTokenInvalid).With("kind", c.kind).With("reason", reason)
	if cause != nil {
		return b.Wrapf(ErrTokenInvalid, "%s token rejected: %v", c.kind, cause)
	}
	return b.Wrapf(ErrTokenInvalid, "%s token rejected: %s", c.kind, reason)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return "issued in the future"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "wrong issuer"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	default:
		return "invalid"
	}
}

// TokenPair is the credential bundle returned on login, registration and
// refresh.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// TokenIssuer pairs an access codec with a refresh codec.
type TokenIssuer struct {
	access  *TokenCodec
	refresh *TokenCodec
}

// NewTokenIssuer validates that the codecs have the expected kinds and do not
// share a signing secret.
func NewTokenIssuer(access, refresh *TokenCodec) (*TokenIssuer, error) {
	if access == nil || access.kind != AccessToken {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").Errorf("an access token codec is required")
	}
	if refresh == nil || refresh.kind != RefreshToken {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").Errorf("a refresh token codec is required")
	}
	if bytes.Equal(access.secret, refresh.secret) {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").Errorf("access and refresh token secrets must differ")
	}
	return &TokenIssuer{access: access, refresh: refresh}, nil
}

// IssuePair issues a fresh access and refresh token for the account.
func (i *TokenIssuer) IssuePair(accountID ulid.ULID, email string) (*TokenPair, error) {
	accessToken, accessClaims, err := i.access.Issue(accountID, email)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshClaims, err := i.refresh.Issue(accountID, email)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessClaims.ExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshClaims.ExpiresAt,
	}, nil
}

// VerifyAccess verifies an access token.
func (i *TokenIssuer) VerifyAccess(token string) (*Claims, error) {
	return i.access.Verify(token)
}

// VerifyRefresh verifies a refresh token.
func (i *TokenIssuer) VerifyRefresh(token string) (*Claims, error) {
	return i.refresh.Verify(token)
}

// AccessTTL returns the access token lifetime.
func (i *TokenIssuer) AccessTTL() time.Duration {
	return i.access.ttl
}

// RefreshTTL returns the refresh token lifetime.
func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.refresh.ttl
}
