// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package authtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codevault/codevault/internal/auth"
)

// Test signing secrets. Both exceed auth.MinTokenSecretLength.
var (
	AccessSecret  = []byte("test-access-secret-0123456789abcdef")
	RefreshSecret = []byte("test-refresh-secret-0123456789abcdef")
)

// FastArgon2Params keep hashing cheap in tests.
var FastArgon2Params = auth.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1}

// NewHasher returns an argon2id hasher with FastArgon2Params.
func NewHasher(tb testing.TB) *auth.Argon2idHasher {
	tb.Helper()
	h, err := auth.NewArgon2idHasher(FastArgon2Params)
	require.NoError(tb, err)
	return h
}

// NewTokenIssuer returns an issuer with default lifetimes and the test
// secrets. A nil now uses the wall clock.
func NewTokenIssuer(tb testing.TB, now func() time.Time) *auth.TokenIssuer {
	tb.Helper()
	var opts []auth.CodecOption
	if now != nil {
		opts = append(opts, auth.WithTokenClock(now))
	}
	access, err := auth.NewTokenCodec(auth.AccessToken, AccessSecret, auth.DefaultAccessTokenTTL, opts...)
	require.NoError(tb, err)
	refresh, err := auth.NewTokenCodec(auth.RefreshToken, RefreshSecret, auth.DefaultRefreshTokenTTL, opts...)
	require.NoError(tb, err)
	issuer, err := auth.NewTokenIssuer(access, refresh)
	require.NoError(tb, err)
	return issuer
}
