// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codevault/codevault/internal/auth"
	"github.com/codevault/codevault/pkg/errutil"
)

func TestGenerateResetToken(t *testing.T) {
	t.Run("generates secure token", func(t *testing.T) {
		token, digest, err := auth.GenerateResetToken()
		require.NoError(t, err)
		assert.Len(t, token, 64) // 32 bytes hex-encoded
		assert.NotEmpty(t, digest)
		assert.NotEqual(t, token, digest)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		token1, digest1, err := auth.GenerateResetToken()
		require.NoError(t, err)

		token2, digest2, err := auth.GenerateResetToken()
		require.NoError(t, err)

		assert.NotEqual(t, token1, token2)
		assert.NotEqual(t, digest1, digest2)
	})

	t.Run("digest is SHA256 hex-encoded of the token", func(t *testing.T) {
		token, digest, err := auth.GenerateResetToken()
		require.NoError(t, err)
		assert.Len(t, digest, 64)
		assert.Equal(t, auth.ResetTokenDigest(token), digest)
	})
}

func TestResetTokenDigest_KnownVector(t *testing.T) {
	// sha256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		auth.ResetTokenDigest("abc"))
}

func TestVerifyResetToken(t *testing.T) {
	t.Run("verifies correct token", func(t *testing.T) {
		token, digest, err := auth.GenerateResetToken()
		require.NoError(t, err)

		assert.True(t, auth.VerifyResetToken(token, digest))
	})

	t.Run("rejects incorrect token", func(t *testing.T) {
		_, digest, err := auth.GenerateResetToken()
		require.NoError(t, err)

		assert.False(t, auth.VerifyResetToken("wrongtoken", digest))
	})

	t.Run("rejects empty token", func(t *testing.T) {
		_, digest, err := auth.GenerateResetToken()
		require.NoError(t, err)

		assert.False(t, auth.VerifyResetToken("", digest))
	})

	t.Run("rejects empty digest", func(t *testing.T) {
		token, _, err := auth.GenerateResetToken()
		require.NoError(t, err)

		assert.False(t, auth.VerifyResetToken(token, ""))
	})

	t.Run("rejects token with swapped characters", func(t *testing.T) {
		token, digest, err := auth.GenerateResetToken()
		require.NoError(t, err)

		tokenBytes := []byte(token)
		tokenBytes[0], tokenBytes[1] = tokenBytes[1], tokenBytes[0]
		if tokenBytes[0] == tokenBytes[1] {
			tokenBytes[0] ^= 1
		}

		assert.False(t, auth.VerifyResetToken(string(tokenBytes), digest))
	})
}

func TestNewPendingReset(t *testing.T) {
	_, digest, err := auth.GenerateResetToken()
	require.NoError(t, err)

	t.Run("accepts digest and expiry", func(t *testing.T) {
		expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		r, err := auth.NewPendingReset(digest, expires)
		require.NoError(t, err)
		assert.Equal(t, digest, r.Digest)
		assert.Equal(t, expires, r.ExpiresAt)
	})

	t.Run("rejects short digest", func(t *testing.T) {
		_, err := auth.NewPendingReset("abc", time.Now())
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_INVALID_DIGEST")
	})

	t.Run("rejects zero expiry", func(t *testing.T) {
		_, err := auth.NewPendingReset(digest, time.Time{})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_INVALID_EXPIRY")
	})
}

func TestPendingReset_IsExpiredAt(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	r := &auth.PendingReset{Digest: "d", ExpiresAt: expires}

	assert.False(t, r.IsExpiredAt(expires.Add(-time.Nanosecond)), "valid just before expiry")
	assert.True(t, r.IsExpiredAt(expires), "expired exactly at expiry")
	assert.True(t, r.IsExpiredAt(expires.Add(time.Minute)), "expired after expiry")
}

func TestResetTokenConstants(t *testing.T) {
	assert.Equal(t, 32, auth.ResetTokenBytes)
	assert.Equal(t, 15*time.Minute, auth.DefaultResetTokenTTL)
}
